package build

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/artpar/trellis/internal/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackage() graph.Package {
	return graph.Package{
		ID:           "hello-world 0.1.0",
		Name:         "hello-world",
		ManifestPath: "/work/contracts/hello-world/Cargo.toml",
		Features:     []string{"alloc", "testutils"},
	}
}

// =============================================================================
// Plan Tests
// =============================================================================

func TestPlan_DefaultProfile(t *testing.T) {
	cmd := Plan("cargo", testPackage(), "/work", Options{})

	assert.Equal(t, "cargo", cmd.Program)
	assert.Equal(t, "hello-world", cmd.Package)
	assert.Equal(t, []string{
		"rustc",
		"--manifest-path=contracts/hello-world/Cargo.toml",
		"--crate-type=cdylib",
		"--target=wasm32-unknown-unknown",
		"--release",
	}, cmd.Args[:5])
	assert.Equal(t, sizeFlags, cmd.Args[5:])
	assert.Equal(t, []string{"RUSTFLAGS=-C embed-bitcode=yes"}, cmd.Env)
}

func TestPlan_ExplicitProfiles(t *testing.T) {
	tests := []struct {
		profile string
		want    string
	}{
		{"release", "--release"},
		{"debug", ""},
		{"bench-small", "--profile=bench-small"},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			cmd := Plan("cargo", testPackage(), "/work", Options{Profile: tt.profile})

			assert.Len(t, cmd.Args, 4+boolToInt(tt.want != ""))
			if tt.want != "" {
				assert.Equal(t, tt.want, cmd.Args[4])
			}
			assert.NotContains(t, cmd.Args, "--")
			assert.Empty(t, cmd.Env)
		})
	}
}

func TestPlan_FeatureIntersection(t *testing.T) {
	cmd := Plan("cargo", testPackage(), "/work", Options{
		Profile:  "debug",
		Features: []string{"testutils", "missing", "alloc", "testutils"},
	})
	assert.Contains(t, cmd.Args, "--features=alloc,testutils")
}

func TestPlan_NoMatchingFeaturesOmitsFlag(t *testing.T) {
	cmd := Plan("cargo", testPackage(), "/work", Options{Profile: "debug", Features: []string{"std"}})
	for _, arg := range cmd.Args {
		assert.NotContains(t, arg, "--features")
	}
}

func TestPlan_FeatureSwitches(t *testing.T) {
	cmd := Plan("cargo", testPackage(), "/work", Options{
		Profile:           "debug",
		AllFeatures:       true,
		NoDefaultFeatures: true,
	})
	assert.Contains(t, cmd.Args, "--all-features")
	assert.Contains(t, cmd.Args, "--no-default-features")
}

func TestPlan_ManifestOutsideWorkingDir(t *testing.T) {
	cmd := Plan("cargo", testPackage(), "", Options{Profile: "debug"})
	assert.Equal(t, "--manifest-path=/work/contracts/hello-world/Cargo.toml", cmd.Args[1])
}

func TestCommand_String(t *testing.T) {
	cmd := Plan("cargo", testPackage(), "/work", Options{Profile: "debug"})
	assert.Equal(t,
		"cargo rustc --manifest-path=contracts/hello-world/Cargo.toml --crate-type=cdylib --target=wasm32-unknown-unknown",
		cmd.String())
}

func TestParseFeatures(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseFeatures("a,b c"))
	assert.Equal(t, []string{"a", "b"}, ParseFeatures(" a ,, b "))
	assert.Empty(t, ParseFeatures(""))
}

func TestOptions_ActiveProfile(t *testing.T) {
	assert.Equal(t, "release", Options{}.ActiveProfile())
	assert.Equal(t, "debug", Options{Profile: "debug"}.ActiveProfile())
}

// =============================================================================
// Artifact Path Tests
// =============================================================================

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello-world", "hello_world"},
		{"soroban_token_contract", "soroban_token_contract"},
		{"a.b-c d", "a_b_c_d"},
		{"café", "caf_"},
		{"Token2", "Token2"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.input))
		})
	}
}

func TestArtifactPaths(t *testing.T) {
	assert.Equal(t, "hello_world.wasm", ArtifactName("hello-world"))
	assert.Equal(t,
		filepath.Join("/t", "wasm32-unknown-unknown", "release", "hello_world.wasm"),
		ArtifactPath("/t", "release", "hello-world"))
	assert.Equal(t, filepath.Join("/t", "trellis", "hello_world.wasm"), OutputPath("/t", "", "hello-world"))
	assert.Equal(t, filepath.Join("/out", "hello_world.wasm"), OutputPath("/t", "/out", "hello-world"))
}

// =============================================================================
// Error Tests
// =============================================================================

func TestBuildError_Exit(t *testing.T) {
	err := NewExitError("hello-world", 101)
	assert.True(t, errors.Is(err, ErrExit))
	assert.Equal(t, "building hello-world: exit status 101", err.Error())

	var bErr *BuildError
	require.True(t, errors.As(error(err), &bErr))
	assert.Equal(t, 101, bErr.Status)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
