// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awsFlagCommand(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().String("profile", "", "")
	cmd.Flags().String("region", "", "")
	return cmd
}

func setSecrets(t *testing.T, s map[string]string) {
	t.Helper()
	prev := loadedSecrets
	loadedSecrets = s
	t.Cleanup(func() { loadedSecrets = prev })
}

func TestAWSConfigPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		flagProfile string
		secrets     map[string]string
		cfgProfile  string
		want        string
	}{
		{
			name:        "flag wins over secret and config",
			flagProfile: "from-flag",
			secrets:     map[string]string{"aws-profile": "from-secret"},
			cfgProfile:  "from-config",
			want:        "from-flag",
		},
		{
			name:       "secret override wins over config file",
			secrets:    map[string]string{"aws-profile": "from-secret"},
			cfgProfile: "from-config",
			want:       "from-secret",
		},
		{
			name:       "config file used when flag and secret are empty",
			cfgProfile: "from-config",
			want:       "from-config",
		},
		{
			name: "empty when nothing is set",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			if tt.cfgProfile != "" {
				viper.Set("aws.profile", tt.cfgProfile)
			}
			setSecrets(t, tt.secrets)

			cmd := awsFlagCommand(t)
			if tt.flagProfile != "" {
				require.NoError(t, cmd.Flags().Set("profile", tt.flagProfile))
			}

			got := awsConfigFromFlags(cmd)
			assert.Equal(t, tt.want, got.Profile)
		})
	}
}

func TestAWSConfigRegionSecretOverridesConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("aws.region", "eu-central-1")
	setSecrets(t, map[string]string{"aws-region": "us-west-2"})

	got := awsConfigFromFlags(awsFlagCommand(t))
	assert.Equal(t, "us-west-2", got.Region)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
