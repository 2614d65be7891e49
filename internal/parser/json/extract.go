package json

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// AutoField selects the records array of an envelope automatically.
const AutoField = "auto"

// PreferredFields are the envelope keys AutoField picks first, in priority
// order. Without any of them the first array in document order wins.
var PreferredFields = []string{"items", "data", "results", "records", "rows"}

// ErrNoArray is returned when field names no array in the root object.
var ErrNoArray = errors.New("json: no records array found")

// ErrTrailingData is returned when the root document is followed by more
// JSON, as in JSON-lines input.
var ErrTrailingData = errors.New("json: data after root document")

// StreamArray emits every element of the records array in r as compact JSON.
//
// Accepted layouts:
//   - a root array: each element is emitted
//   - a root object (envelope): the array under field is emitted; field may
//     be AutoField
//
// The input must be exactly one document. Anything after it yields
// ErrTrailingData; elements emitted before that point are not retracted,
// so callers that need all-or-nothing should collect (see ExtractLines).
//
// Elements do not have to be objects. Keys of the envelope other than the
// chosen array are skipped without materializing them.
func StreamArray(ctx context.Context, r io.Reader, field string, emit func(json.RawMessage) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("json: read first token: %w", err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	switch d {
	case '[':
		if err := streamElements(ctx, dec, emit); err != nil {
			return err
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("json: read array end: %w", err)
		} else if end != json.Delim(']') {
			return fmt.Errorf("json: expected array end ']', got %v", end)
		}
	case '{':
		if err := streamEnvelope(ctx, dec, field, emit); err != nil {
			return err
		}
		if end, err := dec.Token(); err != nil {
			return fmt.Errorf("json: read object end: %w", err)
		} else if end != json.Delim('}') {
			return fmt.Errorf("json: expected object end '}', got %v", end)
		}
	default:
		return fmt.Errorf("json: unsupported root delimiter %q", d)
	}

	if _, err := dec.Token(); err != io.EOF {
		return ErrTrailingData
	}
	return nil
}

// ExtractLines collects StreamArray output, one JSON document per element.
// On error it returns no lines.
func ExtractLines(ctx context.Context, r io.Reader, field string) ([]string, error) {
	var out []string
	err := StreamArray(ctx, r, field, func(m json.RawMessage) error {
		out = append(out, string(m))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// streamElements emits elements of the current array (after '[' has been consumed).
func streamElements(ctx context.Context, dec *json.Decoder, emit func(json.RawMessage) error) error {
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("json: decode array element: %w", err)
		}
		if err := emitCompact(raw, emit); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// streamEnvelope walks a root object (after '{' has been consumed) and emits
// the selected array.
//
// With an explicit field the matching array streams as soon as it is reached.
// With AutoField a preferred key streams directly; the first other array is
// buffered as a fallback and emitted only if no preferred key turns up.
func streamEnvelope(ctx context.Context, dec *json.Decoder, field string, emit func(json.RawMessage) error) error {
	auto := field == "" || field == AutoField
	priority := func(key string) int {
		for i, p := range PreferredFields {
			if p == key {
				return i
			}
		}
		return -1
	}

	streamed := false
	var fallback []json.RawMessage
	haveFallback := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("json: object key not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read object value token: %w", err)
		}
		isArray := valTok == json.Delim('[')

		wanted := !streamed && isArray && ((!auto && key == field) || (auto && priority(key) >= 0))
		if wanted {
			if err := streamElements(ctx, dec, emit); err != nil {
				return err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return err
			}
			streamed = true
			continue
		}

		if auto && isArray && !streamed && !haveFallback {
			for dec.More() {
				var raw json.RawMessage
				if err := dec.Decode(&raw); err != nil {
					return fmt.Errorf("json: decode array element: %w", err)
				}
				fallback = append(fallback, raw)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return err
			}
			haveFallback = true
			continue
		}

		if err := skipValueFromFirstToken(dec, valTok); err != nil {
			return err
		}
	}

	if streamed {
		return nil
	}
	if haveFallback {
		for _, raw := range fallback {
			if err := emitCompact(raw, emit); err != nil {
				return err
			}
		}
		return nil
	}
	if auto {
		return ErrNoArray
	}
	return fmt.Errorf("%w: field %q", ErrNoArray, field)
}

func emitCompact(raw json.RawMessage, emit func(json.RawMessage) error) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return fmt.Errorf("json: compact element: %w", err)
	}
	return emit(buf.Bytes())
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("json: expected %q, got %v", want, end)
	}
	return nil
}

// skipNextValue skips the next JSON value from the decoder, without materializing it.
func skipNextValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: skip value token: %w", err)
	}
	return skipValueFromFirstToken(dec, tok)
}

func skipValueFromFirstToken(dec *json.Decoder, tok any) error {
	d, ok := tok.(json.Delim)
	if !ok {
		// scalar token; nothing else to consume
		return nil
	}

	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("json: skip object key: %w", err)
			}
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, '}')
	case '[':
		for dec.More() {
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')
	default:
		return fmt.Errorf("json: unexpected delimiter %q", d)
	}
}
