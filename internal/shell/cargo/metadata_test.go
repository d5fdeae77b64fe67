package cargo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/trellis/internal/core/build"
	"github.com/artpar/trellis/internal/core/graph"
)

const metadataFixture = `{
  "packages": [
    {
      "id": "token 0.1.0 (path+file:///work/contracts/token)",
      "name": "token",
      "version": "0.1.0",
      "manifest_path": "/work/contracts/token/Cargo.toml",
      "features": {"testutils": [], "default": []},
      "targets": [{"name": "token", "kind": ["cdylib", "rlib"], "crate_types": ["cdylib", "rlib"]}],
      "dependencies": [],
      "metadata": {"loam": {"contract": true}}
    },
    {
      "id": "exchange 0.2.0-beta.1 (path+file:///work/contracts/exchange)",
      "name": "exchange",
      "version": "0.2.0-beta.1",
      "manifest_path": "/work/contracts/exchange/Cargo.toml",
      "features": {},
      "targets": [{"name": "exchange", "kind": ["cdylib"], "crate_types": ["cdylib"]}],
      "dependencies": [{"name": "token", "kind": null}, {"name": "helper", "kind": "dev"}],
      "metadata": {"trellis": {"contract": false, "subcontract": true}, "loam": {"contract": true}}
    },
    {
      "id": "helper 1.0.0 (registry+https://github.com/rust-lang/crates.io-index)",
      "name": "helper",
      "version": "1.0.0",
      "manifest_path": "/home/.cargo/registry/helper/Cargo.toml",
      "features": {},
      "targets": [{"name": "helper", "kind": ["lib"], "crate_types": ["lib"]}],
      "dependencies": [],
      "metadata": null
    }
  ],
  "workspace_members": [
    "token 0.1.0 (path+file:///work/contracts/token)",
    "exchange 0.2.0-beta.1 (path+file:///work/contracts/exchange)"
  ],
  "resolve": {
    "root": null,
    "nodes": [
      {"id": "token 0.1.0 (path+file:///work/contracts/token)", "deps": []},
      {"id": "exchange 0.2.0-beta.1 (path+file:///work/contracts/exchange)", "deps": [
        {"pkg": "token 0.1.0 (path+file:///work/contracts/token)", "dep_kinds": [{"kind": null}]},
        {"pkg": "helper 1.0.0 (registry+https://github.com/rust-lang/crates.io-index)", "dep_kinds": [{"kind": "dev"}]}
      ]}
    ]
  },
  "target_directory": "/work/target",
  "workspace_root": "/work"
}`

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(metadataFixture), nil)
	require.NoError(t, err)

	assert.Equal(t, "/work/target", meta.TargetDir)
	assert.Equal(t, "/work", meta.WorkspaceRoot)
	assert.Empty(t, meta.Root)
	require.Len(t, meta.Packages, 3)

	idx := map[string]graph.Package{}
	for _, p := range meta.Packages {
		idx[p.Name] = p
	}

	token := idx["token"]
	assert.True(t, token.Contract)
	assert.True(t, token.Deployable)
	assert.True(t, token.Member)
	assert.Equal(t, []string{"default", "testutils"}, token.Features)
	assert.Equal(t, "/work/contracts/token", token.Dir())

	exchange := idx["exchange"]
	assert.Equal(t, "0.2.0-beta.1", exchange.Version)
	// The first namespace present wins.
	assert.False(t, exchange.Contract)
	assert.True(t, exchange.Subcontract)
	assert.Equal(t, []graph.PackageID{token.ID}, exchange.Dependencies)

	helper := idx["helper"]
	assert.False(t, helper.Deployable)
	assert.False(t, helper.Member)
}

func TestParseMetadata_ContractDependencies(t *testing.T) {
	meta, err := ParseMetadata([]byte(metadataFixture), nil)
	require.NoError(t, err)

	pkgs, err := graph.Select(meta, "exchange")
	require.NoError(t, err)
	assert.Equal(t, []string{"token", "exchange"}, graph.Names(pkgs))
}

func TestParseMetadata_CustomNamespace(t *testing.T) {
	meta, err := ParseMetadata([]byte(metadataFixture), []string{"loam"})
	require.NoError(t, err)
	for _, p := range meta.Packages {
		if p.Name == "exchange" {
			assert.True(t, p.Contract)
		}
	}
}

func TestParseMetadata_Errors(t *testing.T) {
	_, err := ParseMetadata([]byte("{not json"), nil)
	assert.True(t, errors.Is(err, ErrMetadata))

	_, err = ParseMetadata([]byte(`{"packages":[{"id":"x","name":"x","version":"not-a-version"}]}`), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMetadata))
	assert.Contains(t, err.Error(), "not-a-version")

	_, err = ParseMetadata([]byte(`{"packages":[{"id":"x","name":"x","version":"1.0.0","metadata":{"trellis":{"contract":"yes"}}}]}`), nil)
	assert.True(t, errors.Is(err, ErrMetadata))
}

func TestMetadataLoader_CommandFailure(t *testing.T) {
	loader := NewMetadataLoader("false", nil, nil)
	_, err := loader.Load(context.Background(), "Cargo.toml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMetadata))

	var be *build.BuildError
	assert.True(t, errors.As(err, &be))
}
