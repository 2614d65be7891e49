package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestHelperProcess is a subprocess entrypoint used by tests. The parent
// re-runs the test binary with -test.run=TestHelperProcess and
// GO_WANT_HELPER_PROCESS=1; arguments after "--" become the command line.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}

	main()
	os.Exit(0)
}

// runCmd executes main() in a subprocess and returns stdout, stderr and the
// exit code.
func runCmd(t *testing.T, stdin string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmdArgs := []string{"-test.run=TestHelperProcess", "--"}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(os.Args[0], cmdArgs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	cmd.Stdin = strings.NewReader(stdin)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()
	if err == nil {
		return stdout, stderr, 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return stdout, stderr, ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

// execute runs the command tree in-process.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := newRootCmd(newApp(strings.NewReader(stdin), &out, &errOut))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestProfile_TabularFile(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "people.csv", "name,age\nAlice,30\nBob,30\n")
	out, err := execute(t, "", "profile", "--delimiter", ",", "--grain", "H", "--log-level", "error", p)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}

	for _, want := range []string{
		"Data Profiling Report: ",
		"Examined rows: 2",
		"2 fields: 2 rows",
		"col_00001_age\t2       \t99      \t30",
		"col_00000_name\t1       \tAaa     \tBob",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestProfile_ExtractArrayFromStdin(t *testing.T) {
	t.Parallel()

	in := `{"page":1,"items":[{"id":"a1"},{"id":"b22"}]}`
	out, err := execute(t, in, "profile", "--extract-array", "auto", "--log-level", "error")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, "Examined rows: 2") || !strings.Contains(out, "col_00000_id") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestProfile_ExtractArrayFallsBackToJSONLines(t *testing.T) {
	t.Parallel()

	in := "{\"id\":\"a1\",\"tags\":[\"x\",\"y\"]}\n{\"id\":\"b2\",\"tags\":[\"z\"]}\n"
	out, err := execute(t, in, "profile", "--extract-array", "auto", "--log-level", "error")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	for _, want := range []string{"Examined rows: 2", "col_00000_id\t2       \t", "tags[0]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestProfile_HTMLTable(t *testing.T) {
	t.Parallel()

	page := "<html><body><table>\n<tr><th>code</th></tr>\n<tr><td>AB1</td></tr>\n</table></body></html>\n"
	out, err := execute(t, page, "profile", "--log-level", "error")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, "col_00000_code\t1       \tA9") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestProfile_SQLiteSink(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "dq.db")
	p := writeFile(t, "in.txt", "k|v\nx|1\ny|2\n")
	_, err := execute(t, "", "profile", "--log-level", "error",
		"--sink-kind", "sqlite3", "--sink-dsn", dbPath, "--sink-table", "profile_rows", p)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT SUM(pattern_count) FROM profile_rows WHERE field_path = 'v'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 2 {
		t.Fatalf("pattern_count sum = %d, want 2", n)
	}
}

func TestProfile_EnvOverridesDefault(t *testing.T) {
	t.Setenv("DQPROBE_PROFILE_GRAIN", "H")
	t.Setenv("DQPROBE_PROFILE_DELIMITER", "tab")

	out, err := execute(t, "n\tm\nab\t1\n", "profile", "--log-level", "error")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, "col_00000_n\t1       \taa      \tab") {
		t.Fatalf("expected high grain tab-delimited profile, got:\n%s", out)
	}
}

func TestProfile_ConfigFile(t *testing.T) {
	t.Parallel()

	cfg := writeFile(t, "dqprobe.yaml", "profile:\n  delimiter: \",\"\n  header_row: 1\n")
	out, err := execute(t, "junk line\nc\n7\n", "profile", "--config", cfg, "--log-level", "error")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, "Examined rows: 1") || !strings.Contains(out, "col_00000_c") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEnhance_FlatJSONLines(t *testing.T) {
	t.Parallel()

	out, err := execute(t, `{"age":"30"}`+"\n", "enhance", "--flat", "--log-level", "error")
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", out)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("invalid json %q: %v", lines[0], err)
	}
	if got["age.raw"] != "30" || got["age.LU"] != "9" || got["age.Rules.is_numeric"] != true {
		t.Fatalf("unexpected record: %v", got)
	}
}

func TestCharprof_Stdin(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "aa\n", "charprof", "--log-level", "error")
	if err != nil {
		t.Fatalf("charprof: %v", err)
	}
	if !strings.Contains(out, "61    \tU+0061    \t2       \t'a'       \tLATIN SMALL LETTER A") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "LF - Line Feed") {
		t.Fatalf("expected line feed entry:\n%s", out)
	}
}

func TestMain_InvalidGrainExits1(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "a\n1\n", "profile", "--grain", "XX")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d\nstderr:\n%s\nstdout:\n%s", code, stderr, stdout)
	}
	if !strings.Contains(stderr, "error:") || !strings.Contains(stderr, "grain") {
		t.Fatalf("expected grain error on stderr, got:\n%s", stderr)
	}
}

func TestMain_ProfileStdin(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "id|name\n1|Ann\n", "profile", "--log-format", "json")
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d\nstderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Examined rows: 1") {
		t.Fatalf("unexpected stdout:\n%s", stdout)
	}
	if !strings.Contains(stderr, `"msg":"profile complete"`) {
		t.Fatalf("expected json log line on stderr, got:\n%s", stderr)
	}
}
