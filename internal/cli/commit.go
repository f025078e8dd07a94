package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/metadata"
)

var errMessageRequired = errors.New("commit message is required (-m)")

// CommitCmd returns the commit command.
func CommitCmd(app *App) *Command {
	flags := flag.NewFlagSet("commit", flag.ContinueOnError)
	message := flags.StringP("message", "m", "", "Commit message")
	bpm := flags.Float32("bpm", 0, "Tempo in beats per minute")
	sampleRate := flags.Uint32("sample-rate", 0, "Sample rate in Hz")
	key := flags.String("key", "", "Musical key signature")
	units := flags.String("units", "", "Project working units")
	layers := flags.Uint32("layers", 0, "Layer/track count")
	components := flags.Uint32("components", 0, "Component/instance count")
	groups := flags.Uint32("groups", 0, "Group count")
	tags := flags.StringSlice("tag", nil, "Tag (repeatable)")

	return &Command{
		Flags: flags,
		Usage: "commit -m <message> [flags]",
		Short: "Stage everything and commit with domain-typed metadata",
		Long:  "Stages all changes and commits with the given message plus optional creative-project metadata, encoded into the commit message in a fixed field order.",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			if *message == "" {
				return errMessageRequired
			}

			md := metadata.New(*message)

			if flags.Changed("bpm") {
				md = md.WithBPM(*bpm)
			}
			if flags.Changed("sample-rate") {
				md = md.WithSampleRate(*sampleRate)
			}
			if flags.Changed("key") {
				md = md.WithKeySignature(*key)
			}
			if flags.Changed("units") {
				md = md.WithUnits(*units)
			}
			if flags.Changed("layers") {
				md = md.WithLayerCount(*layers)
			}
			if flags.Changed("components") {
				md = md.WithComponentCount(*components)
			}
			if flags.Changed("groups") {
				md = md.WithGroupCount(*groups)
			}
			for _, t := range *tags {
				md = md.WithTag(t)
			}

			if err := app.Facade.Add(ctx, app.Config.RepoDir, nil); err != nil {
				return err
			}

			record, err := app.Facade.Commit(ctx, app.Config.RepoDir, md)
			if err != nil {
				return err
			}

			o.Println("Committed", record.ID)

			return nil
		},
	}
}
