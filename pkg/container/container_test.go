package container_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/mlci/pkg/cmp"
	"github.com/opst/mlci/pkg/container"
	"github.com/opst/mlci/pkg/utils/try"
)

func TestLayout(t *testing.T) {
	testee := container.New("./testdata/opt_ml")

	t.Run("hyperparameters", func(t *testing.T) {
		hp := try.To(testee.Hyperparameters()).OrFatal(t)
		if !cmp.MapEq(hp, map[string]string{"nestimators": "70"}) {
			t.Errorf("hyperparameters: %v", hp)
		}
	})

	t.Run("input data config", func(t *testing.T) {
		channels := try.To(testee.InputDataConfig()).OrFatal(t)
		if len(channels) != 2 {
			t.Fatalf("channels: %v", channels)
		}
		training, ok := channels[container.ChannelTraining]
		if !ok {
			t.Fatal("training channel is missing")
		}
		expected := container.Channel{
			ContentType: "text/csv", TrainingInputMode: "File",
			S3DistributionType: "FullyReplicated", RecordWrapperType: "None",
		}
		if training != expected {
			t.Errorf("training: (actual, expected) = (%+v, %+v)", training, expected)
		}
	})

	t.Run("resource config", func(t *testing.T) {
		res := try.To(testee.ResourceConfig()).OrFatal(t)
		if res.CurrentHost != "algo-1" || !cmp.SliceEq(res.Hosts, []string{"algo-1"}) {
			t.Errorf("resource: %+v", res)
		}
	})

	t.Run("paths", func(t *testing.T) {
		if d := testee.ChannelDir("training"); d != filepath.Join("testdata", "opt_ml", "input", "data", "training") {
			t.Errorf("channel dir: %s", d)
		}
		if d := testee.ModelDir(); d != filepath.Join("testdata", "opt_ml", "model") {
			t.Errorf("model dir: %s", d)
		}
	})
}

func TestDefaultRoot(t *testing.T) {
	if r := container.New("").Root(); r != "/opt/ml" {
		t.Errorf("root: %s", r)
	}
}

func TestHyperparametersMissing(t *testing.T) {
	hp := try.To(container.New(t.TempDir()).Hyperparameters()).OrFatal(t)
	if len(hp) != 0 {
		t.Errorf("hyperparameters: %v", hp)
	}
}

func TestWriteFailure(t *testing.T) {
	root := t.TempDir()
	testee := container.New(root)
	if err := testee.WriteFailure("no training data"); err != nil {
		t.Fatal(err)
	}
	content := try.To(os.ReadFile(filepath.Join(root, "output", "failure"))).OrFatal(t)
	if string(content) != "no training data" {
		t.Errorf("failure: %s", content)
	}
}

func TestChannelFile(t *testing.T) {
	root := t.TempDir()
	testee := container.New(root)
	dir := testee.ChannelDir(container.ChannelTraining)

	t.Run("when the channel directory is missing, it is ErrNotExist", func(t *testing.T) {
		_, err := testee.ChannelFile(container.ChannelTraining)
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("when the channel has no files, it is ErrNotExist", func(t *testing.T) {
		_, err := testee.ChannelFile(container.ChannelTraining)
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	for _, name := range []string{"b.csv", "a.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("y,x\n1,2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("it returns the first file in lexical order", func(t *testing.T) {
		f := try.To(testee.ChannelFile(container.ChannelTraining)).OrFatal(t)
		if f != filepath.Join(dir, "a.csv") {
			t.Errorf("channel file: %s", f)
		}
	})
}
