package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/defgen/pkg/markov"
)

const testCorpus = `CAT
Cat, n.

Defn: the cat sat

DOG
Dog, n.

Defn: the dog ran
`

// setupTestRun writes a corpus and a config pointing at temp files and
// returns the config path.
func setupTestRun(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	corpusPath := filepath.Join(dir, "webster.txt")
	if err := os.WriteFile(corpusPath, []byte(testCorpus), 0644); err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	config.LogLevel = "error"
	config.Corpus.Path = corpusPath
	config.Model.DatabasePath = filepath.Join(dir, "defgen.db")
	data, err := json.Marshal(config)
	if err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "defgen.json")
	if err = os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatal(err)
	}
	return configPath, dir
}

func runCommand(t *testing.T, configPath string, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	err := run(context.Background(), append([]string{"-config", configPath}, args...), stdin, &stdout, &stderr)
	return stdout.String(), err
}

func TestTrainAndGenerate(t *testing.T) {
	configPath, dir := setupTestRun(t)
	matrixPath := filepath.Join(dir, "webster.bin")

	out, err := runCommand(t, configPath, nil, "train", "-matrix", matrixPath, "-workers", "2")
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if !strings.Contains(out, `Trained model "webster": 2 definitions (0 skipped), 7 tokens`) {
		t.Errorf("train output = %q", out)
	}

	for _, source := range [][]string{{}, {"-matrix", matrixPath}} {
		args := append([]string{"generate", "-n", "4", "-seed", "3"}, source...)
		out, err = runCommand(t, configPath, nil, args...)
		if err != nil {
			t.Fatalf("generate %v failed: %v", source, err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 4 {
			t.Fatalf("generate %v printed %d lines: %q", source, len(lines), out)
		}
		for _, line := range lines {
			if line != "Definition: the cat sat" && line != "Definition: the dog ran" {
				t.Errorf("unexpected line %q", line)
			}
		}
	}

	first, _ := runCommand(t, configPath, nil, "generate", "-n", "10", "-seed", "11")
	second, _ := runCommand(t, configPath, nil, "generate", "-n", "10", "-seed", "11")
	if first != second {
		t.Error("the same seed produced different output")
	}
}

func TestGenerateInteractive(t *testing.T) {
	configPath, _ := setupTestRun(t)
	if _, err := runCommand(t, configPath, nil, "train"); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	app, err := newApp(config, strings.NewReader(""), &stdout, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	answers := []bool{true, true, false}
	asked := 0
	app.confirm = func(question string) (bool, error) {
		if question != "Generate another definition?" {
			t.Errorf("question = %q", question)
		}
		answer := answers[asked]
		asked++
		return answer, nil
	}

	if err = cmdGenerate(context.Background(), app, []string{"-interactive", "-seed", "5"}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if asked != 3 {
		t.Errorf("asked %d times, want 3", asked)
	}
	if n := strings.Count(stdout.String(), "Definition: "); n != 3 {
		t.Errorf("printed %d definitions, want 3: %q", n, stdout.String())
	}
}

func TestGenerateTemplateFile(t *testing.T) {
	configPath, dir := setupTestRun(t)
	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	templatePath := filepath.Join(dir, "definition.tmpl")
	if err = os.WriteFile(templatePath, []byte("{{.Index}}. {{capitalize .Text}}.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	config.Generate.TemplateFile = templatePath

	var stdout bytes.Buffer
	app, err := newApp(config, strings.NewReader(""), &stdout, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	ctx := context.Background()
	if err = cmdTrain(ctx, app, nil); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	stdout.Reset()
	if err = cmdGenerate(ctx, app, []string{"-n", "2", "-seed", "1"}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "1. The ") || !strings.HasPrefix(lines[1], "2. The ") {
		t.Errorf("generate output = %q", stdout.String())
	}
}

func TestGenerateExhausted(t *testing.T) {
	configPath, dir := setupTestRun(t)
	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("no definitions here\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, configPath, nil, "train", "-corpus", empty, "-model", "empty"); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	_, err := runCommand(t, configPath, nil, "generate", "-model", "empty")
	if !errors.Is(err, markov.ErrExhaustedPath) {
		t.Errorf("generate error = %v, want ErrExhaustedPath", err)
	}

	_, err = runCommand(t, configPath, nil, "generate", "-model", "missing")
	if !errors.Is(err, markov.ErrModelNotFound) {
		t.Errorf("generate error = %v, want ErrModelNotFound", err)
	}
}

func TestModelManagementCommands(t *testing.T) {
	configPath, dir := setupTestRun(t)
	if _, err := runCommand(t, configPath, nil, "train"); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	out, err := runCommand(t, configPath, nil, "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "MODEL") || !strings.Contains(out, "webster") {
		t.Errorf("stats output = %q", out)
	}

	exportPath := filepath.Join(dir, "export.json")
	if _, err = runCommand(t, configPath, nil, "export", "-out", exportPath); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	exported, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = runCommand(t, configPath, nil, "remove", "-model", "webster"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err = runCommand(t, configPath, nil, "stats", "-model", "webster"); !errors.Is(err, markov.ErrModelNotFound) {
		t.Errorf("stats after remove error = %v, want ErrModelNotFound", err)
	}

	out, err = runCommand(t, configPath, bytes.NewReader(exported), "import")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, `Imported model "webster": 7 tokens`) {
		t.Errorf("import output = %q", out)
	}

	out, err = runCommand(t, configPath, nil, "prune", "-min-freq", "1")
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if !strings.Contains(out, "Removed 6 transitions") {
		t.Errorf("prune output = %q", out)
	}

	out, err = runCommand(t, configPath, nil, "stats", "-model", "webster", "-json")
	if err != nil {
		t.Fatalf("stats -json failed: %v", err)
	}
	var entries []struct {
		Name  string            `json:"name"`
		Stats markov.ModelStats `json:"stats"`
	}
	if err = json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("stats -json output is not JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "webster" || entries[0].Stats.DistinctTransitions != 1 {
		t.Errorf("got %+v", entries)
	}
}

func TestRunUsage(t *testing.T) {
	configPath, _ := setupTestRun(t)

	if _, err := runCommand(t, configPath, nil); !errors.Is(err, errUsage) {
		t.Errorf("no command error = %v, want errUsage", err)
	}
	if _, err := runCommand(t, configPath, nil, "frobnicate"); !errors.Is(err, errUsage) {
		t.Errorf("unknown command error = %v, want errUsage", err)
	}
	if _, err := runCommand(t, configPath, nil, "generate", "-bogus"); !errors.Is(err, errUsage) {
		t.Errorf("bad flag error = %v, want errUsage", err)
	}

	out, err := runCommand(t, configPath, nil, "version")
	if err != nil || !strings.HasPrefix(out, "defgen dev") {
		t.Errorf("version = %q, %v", out, err)
	}
}
