package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	app "github.com/okian/learnmatch/internal/app"
	"github.com/okian/learnmatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateCommand(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given the generate subcommand", t, func() {
		path := filepath.Join(t.TempDir(), "seed.yaml")

		convey.Convey("When it writes a seed file", func() {
			out, err := execute("generate", "--users", "8", "--seed", "5", "-o", path)

			convey.Convey("Then the service can load it", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "wrote 8 profiles")
				vs, err := app.LoadSeedFile(context.Background(), path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(vs, convey.ShouldHaveLength, 8)
			})
		})

		convey.Convey("When users is not positive", func() {
			_, err := execute("generate", "--users", "0", "-o", path)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestRunCommand(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given the run subcommand without a service", t, func() {
		convey.Convey("Then the health check fails the run", func() {
			_, err := execute("run", "--url", "http://127.0.0.1:1", "--users", "1", "--timeout", "200ms")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
