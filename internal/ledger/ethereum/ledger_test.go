package ethereum

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// first account of the default hardhat/anvil mnemonic
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, nil, Config{ContractAddress: "not-an-address"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(ctx, nil, Config{
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		PrivateKey:      "0x1234",
		ChainID:         31337,
	}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_SignerFromKey(t *testing.T) {
	l, err := New(context.Background(), nil, Config{
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		PrivateKey:      devKey,
		ChainID:         31337,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", l.Sender().Hex())
	require.NoError(t, l.Close())
}

func TestSubmit_ReadOnly(t *testing.T) {
	l, err := New(context.Background(), nil, Config{
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = l.Submit(context.Background(), [32]byte{}, false, [32]byte{})
	assert.Error(t, err)
}

func TestDecodeEntry_FromABIOutput(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	require.NoError(t, err)

	var hash, company [32]byte
	hash[31] = 0x42
	copy(company[:], "ACME")

	packed, err := parsed.Methods[methodEntry].Outputs.Pack(big.NewInt(7), hash, true, company)
	require.NoError(t, err)

	out, err := parsed.Unpack(methodEntry, packed)
	require.NoError(t, err)

	entry, err := decodeEntry(out)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), entry.ID)
	assert.Equal(t, byte(0x42), entry.DataHash[31])
	assert.True(t, entry.IsFraudulent)
	assert.Equal(t, company, entry.CompanyID)

	_, err = decodeEntry(out[:2])
	assert.Error(t, err)
}

func TestContractABI_RecordSignature(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	require.NoError(t, err)

	m, ok := parsed.Methods[methodRecord]
	require.True(t, ok)
	assert.Equal(t, "recordTransaction(bytes32,bool,bytes32)", m.Sig)

	_, err = parsed.Pack(methodRecord, [32]byte{1}, true, [32]byte{2})
	assert.NoError(t, err)
}
