package flagx

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registerRequest struct {
	Status   string            `flag:"status,s" usage:"initial status" default:"UP"`
	Port     int               `flag:"port" default:"8080"`
	Weight   uint              `flag:"weight"`
	Secure   bool              `flag:"secure"`
	Ratio    float64           `flag:"ratio" default:"0.5"`
	Lease    time.Duration     `flag:"lease" default:"90s"`
	Zones    []string          `flag:"zones"`
	Ports    []int             `flag:"ports"`
	Metadata map[string]string `flag:"metadata,m"`
	Ignored  string
	hidden   string `flag:"hidden"`
}

func TestBindAndParse_Defaults(t *testing.T) {
	cmd := &cobra.Command{}
	var req registerRequest
	require.NoError(t, BindFlags(cmd, &req))
	assert.Nil(t, cmd.Flags().Lookup("hidden"))
	assert.NotNil(t, cmd.Flags().ShorthandLookup("m"))

	require.NoError(t, ParseFlags(cmd, &req))
	assert.Equal(t, "UP", req.Status)
	assert.Equal(t, 8080, req.Port)
	assert.Equal(t, 0.5, req.Ratio)
	assert.Equal(t, 90*time.Second, req.Lease)
	assert.Empty(t, req.Metadata)
}

func TestBindAndParse_Values(t *testing.T) {
	cmd := &cobra.Command{}
	var req registerRequest
	require.NoError(t, BindFlags(cmd, &req))
	require.NoError(t, cmd.ParseFlags([]string{
		"-s", "STARTING",
		"--port", "9000",
		"--weight", "3",
		"--secure",
		"--lease", "30s",
		"--zones", "us-east-1a,us-east-1b",
		"--ports", "80,443",
		"-m", "zone=us-east-1a",
		"--metadata", "version=2",
	}))

	require.NoError(t, ParseFlags(cmd, &req))
	assert.Equal(t, "STARTING", req.Status)
	assert.Equal(t, 9000, req.Port)
	assert.Equal(t, uint(3), req.Weight)
	assert.True(t, req.Secure)
	assert.Equal(t, 30*time.Second, req.Lease)
	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, req.Zones)
	assert.Equal(t, []int{80, 443}, req.Ports)
	assert.Equal(t, map[string]string{"zone": "us-east-1a", "version": "2"}, req.Metadata)
}

func TestBindFlags_Required(t *testing.T) {
	type req struct {
		App string `flag:"app" required:"true"`
	}
	cmd := &cobra.Command{Use: "register", RunE: func(*cobra.Command, []string) error { return nil }}
	var r req
	require.NoError(t, BindFlags(cmd, &r))
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app")
}

func TestBindFlags_Errors(t *testing.T) {
	var s string
	assert.ErrorContains(t, BindFlags(&cobra.Command{}, &s), "pointer to struct")
	assert.ErrorContains(t, BindFlags(&cobra.Command{}, registerRequest{}), "pointer to struct")

	type badDefault struct {
		Port int `flag:"port" default:"eighty"`
	}
	assert.ErrorContains(t, BindFlags(&cobra.Command{}, &badDefault{}), "invalid default")

	type badLease struct {
		Lease time.Duration `flag:"lease" default:"soon"`
	}
	assert.ErrorContains(t, BindFlags(&cobra.Command{}, &badLease{}), "invalid default")

	type badMap struct {
		Weights map[string]int `flag:"weights"`
	}
	assert.ErrorContains(t, BindFlags(&cobra.Command{}, &badMap{}), "unsupported map type")

	type badKind struct {
		Ch chan int `flag:"ch"`
	}
	assert.ErrorContains(t, BindFlags(&cobra.Command{}, &badKind{}), "unsupported field type")
}

func TestParseFlags_UndefinedFlag(t *testing.T) {
	type req struct {
		Status string `flag:"status"`
	}
	var r req
	err := ParseFlags(&cobra.Command{}, &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--status not defined")
}
