package main

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pixelweather-go/platform/sim"
	"pixelweather-go/pwmp"
	"pixelweather-go/types"
)

var (
	publishReleases string
	publishPayload  string
)

var publishCmd = &cobra.Command{
	Use:   "publish VERSION",
	Short: "Stage a firmware image for over-the-air updates",
	Long: `Build a simulator firmware image for VERSION (X.Y.Z) and store it in the
release directory served by "pwnode serve --releases".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload []byte
		if publishPayload != "" {
			var err error
			if payload, err = os.ReadFile(publishPayload); err != nil {
				return err
			}
		}
		token, err := publish(publishReleases, args[0], payload)
		if err != nil {
			return err
		}
		fmt.Printf("Published %s to %s\n", token, publishReleases)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishReleases, "releases", "releases", "Release directory")
	publishCmd.Flags().StringVar(&publishPayload, "payload", "", "File to embed as the image body")
	rootCmd.AddCommand(publishCmd)
}

// publish stores an image whose version token mimics `git describe` output,
// with the payload digest standing in for the commit.
func publish(dir, version string, payload []byte) (string, error) {
	v, err := types.ParseVersion(version)
	if err != nil {
		return "", err
	}
	if payload == nil {
		payload = []byte("PixelWeather OS " + v.String() + "\n")
	}
	sum := sha1.Sum(payload)
	token := "v" + v.String() + "-0-g" + hex.EncodeToString(sum[:])[:7]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return token, pwmp.DirReleases{Dir: dir}.Publish(v, sim.BuildImage(token, payload))
}
