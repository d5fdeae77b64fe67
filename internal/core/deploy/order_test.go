package deploy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artpar/trellis/internal/core/environment"
)

func TestOrderContracts(t *testing.T) {
	built := []string{"token", "registry", "counter", "oracle"}
	configured := []environment.Contract{
		{Name: "counter", Client: true},
		{Name: "missing"},
		{Name: "token"},
		{Name: "counter"},
	}

	got := OrderContracts(built, configured)
	assert.Equal(t, []string{"counter", "token", "registry", "oracle"}, got)
}

func TestOrderContracts_NoConfig(t *testing.T) {
	built := []string{"b", "a"}
	assert.Equal(t, []string{"b", "a"}, OrderContracts(built, nil))
	assert.Empty(t, OrderContracts(nil, nil))
}

func TestErrors(t *testing.T) {
	err := NewBadContractNameError("ghost")
	assert.Equal(t, `no contract named "ghost"`, err.Error())
	assert.True(t, errors.Is(err, ErrBadContractName))

	idErr := NewInvalidContractIDError("token", "CXYZ")
	assert.True(t, errors.Is(idErr, ErrInvalidContractID))
	assert.Contains(t, idErr.Error(), "CXYZ")

	pErr := NewPolicyError("token", environment.Production, "nope")
	assert.True(t, errors.Is(pErr, ErrRejected))
	assert.Equal(t, `contract "token" rejected: nope`, pErr.Error())
}
