package walker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type pair struct {
	Path string
	Text string
}

func collect(t *testing.T, doc string, opt Options) []pair {
	t.Helper()
	v, err := Parse([]byte(doc))
	require.NoError(t, err)

	var out []pair
	for p, s := range Walk(v, opt) {
		out = append(out, pair{p, s.Text()})
	}
	return out
}

func TestWalk(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		opt  Options
		want []pair
	}{
		{
			name: "nested object within depth",
			doc:  `{"a":{"b":1}}`,
			opt:  Options{MaxDepth: 9},
			want: []pair{{"a.b", "1"}},
		},
		{
			name: "nested object beyond depth",
			doc:  `{"a":{"b":1}}`,
			opt:  Options{MaxDepth: 1},
			want: nil,
		},
		{
			name: "scalar at limit still yields",
			doc:  `{"a":1,"b":{"c":2}}`,
			opt:  Options{MaxDepth: 1},
			want: []pair{{"a", "1"}},
		},
		{
			name: "collapsed array indices",
			doc:  `{"a":[1,2]}`,
			opt:  Options{MaxDepth: 9, CollapseArrayIndices: true},
			want: []pair{{"a[]", "1"}, {"a[]", "2"}},
		},
		{
			name: "indexed array",
			doc:  `{"a":[1,2]}`,
			opt:  Options{MaxDepth: 9},
			want: []pair{{"a[0]", "1"}, {"a[1]", "2"}},
		},
		{
			name: "objects inside arrays",
			doc:  `{"items":[{"sku":"X1"},{"sku":"Y2","qty":3}]}`,
			opt:  Options{MaxDepth: 9},
			want: []pair{{"items[0].sku", "X1"}, {"items[1].sku", "Y2"}, {"items[1].qty", "3"}},
		},
		{
			name: "empty containers",
			doc:  `{"a":{},"b":[]}`,
			opt:  Options{},
			want: nil,
		},
		{
			name: "scalar kinds",
			doc:  `{"s":"hi","n":-1.5e3,"t":true,"z":null}`,
			opt:  Options{},
			want: []pair{{"s", "hi"}, {"n", "-1.5e3"}, {"t", "true"}, {"z", "null"}},
		},
		{
			name: "document order kept",
			doc:  `{"z":1,"a":2,"m":3}`,
			opt:  Options{},
			want: []pair{{"z", "1"}, {"a", "2"}, {"m", "3"}},
		},
		{
			name: "root array",
			doc:  `[{"a":1},2]`,
			opt:  Options{},
			want: []pair{{"[0].a", "1"}, {"[1]", "2"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(t, tc.doc, tc.opt)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Walk mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWalk_EarlyStopAndRestart(t *testing.T) {
	v, err := Parse([]byte(`{"a":1,"b":2,"c":3}`))
	require.NoError(t, err)

	seq := Walk(v, Options{})
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)

	n = 0
	for range seq {
		n++
	}
	require.Equal(t, 3, n)
}

func TestFlatten(t *testing.T) {
	v, err := Parse([]byte(`{"a":{"b":"x","c":[true]}}`))
	require.NoError(t, err)

	b, err := Flatten(v, Options{}).MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"a.b":"x","a.c[0]":true}`, string(b))
}

func TestParse(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	require.ErrorIs(t, err, ErrTrailingData)

	_, err = Parse([]byte(`{"a":`))
	require.Error(t, err)

	v, err := Parse([]byte(`{"html":"<b>&</b>","n":10}`))
	require.NoError(t, err)
	b, err := v.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"html":"<b>&</b>","n":10}`, string(b))

	got, ok := v.Get("n")
	require.True(t, ok)
	require.Equal(t, Number, got.Kind())
	require.Equal(t, "10", got.AsString())
}
