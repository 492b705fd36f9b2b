package compiler

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/aionnetwork/fastvm/core/evmjit/ir"
)

// splitOnly runs the basic-block splitter without compiling the blocks.
func splitOnly(code []byte) (*Compiler, []*BasicBlock) {
	c := New(Config{Revision: Aion})
	c.mod = ir.NewModule("test")
	c.mainFn = c.mod.NewFunc("execute", ir.I32, ir.ExternalLinkage, ir.BytePtr)
	c.blockStarts = bitmap{}
	return c, c.createBasicBlocks(code)
}

func TestCreateBasicBlocksSingle(t *testing.T) {
	// PUSH1 1, PUSH1 2, ADD, STOP
	_, blocks := splitOnly(common.Hex2Bytes("6001600201" + "00"))
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(0), blocks[0].FirstInstrIdx())
	require.Equal(t, 0, blocks[0].Begin())
	require.Equal(t, 6, blocks[0].End())
}

func TestCreateBasicBlocksJumpdestChain(t *testing.T) {
	// JUMPDEST, JUMPDEST, STOP: each JUMPDEST opens a block.
	_, blocks := splitOnly(common.Hex2Bytes("5b5b00"))
	require.Len(t, blocks, 3)
	for i, want := range []uint64{0, 1, 2} {
		require.Equal(t, want, blocks[i].FirstInstrIdx())
	}
	// The ranges concatenate to exactly the input.
	for i := 0; i+1 < len(blocks); i++ {
		require.Equal(t, blocks[i].End(), blocks[i+1].Begin())
	}
	require.Equal(t, 3, blocks[len(blocks)-1].End())
}

func TestCreateBasicBlocksDeadCode(t *testing.T) {
	// STOP; dead ADD, CALLDATALOAD; JUMPDEST revives; STOP.
	_, blocks := splitOnly(common.Hex2Bytes("0001355b00"))
	require.Len(t, blocks, 2)
	require.Equal(t, uint64(0), blocks[0].FirstInstrIdx())
	require.Equal(t, 1, blocks[0].End())
	require.Equal(t, uint64(3), blocks[1].FirstInstrIdx())
	require.Equal(t, 5, blocks[1].End())
}

func TestCreateBasicBlocksPushDataNotScanned(t *testing.T) {
	// PUSH1 0x5b, STOP: the 0x5b byte is immediate data, not a JUMPDEST.
	_, blocks := splitOnly(common.Hex2Bytes("605b00"))
	require.Len(t, blocks, 1)
	require.Equal(t, 3, blocks[0].End())
}

func TestCreateBasicBlocksTruncatedPush(t *testing.T) {
	// PUSH2 with a single immediate byte left.
	_, blocks := splitOnly(common.Hex2Bytes("61ff"))
	require.Len(t, blocks, 1)
	require.Equal(t, 2, blocks[0].End())

	// PUSH1 with no immediate byte at all.
	_, blocks = splitOnly(common.Hex2Bytes("60"))
	require.Len(t, blocks, 1)
	require.Equal(t, 1, blocks[0].End())
}

func TestCreateBasicBlocksProperties(t *testing.T) {
	cases := []string{
		"6001600201" + "00",
		"6005600056" + "5b00",
		"60ff600a600052602060006000f3",
		"5b5b00",
		"600157",
		"0001355b00",
		"61ff",
		"6000600057" + "00" + "5b00",
	}
	for _, hexCode := range cases {
		code := common.Hex2Bytes(hexCode)
		c, blocks := splitOnly(code)

		last := -1
		for _, bb := range blocks {
			// Strictly increasing, begin matches the instruction index.
			require.Greater(t, bb.Begin(), last, "code %s", hexCode)
			require.Equal(t, uint64(bb.Begin()), bb.FirstInstrIdx())
			require.LessOrEqual(t, bb.End(), len(code))
			require.Greater(t, bb.End(), bb.Begin(), "blocks are never empty")
			require.True(t, c.blockStarts.isBitSet(bb.FirstInstrIdx()))

			// A block never begins after a terminator unless at a JUMPDEST.
			if bb.Begin() > 0 && ByteCode(code[bb.Begin()]) != JUMPDEST {
				require.Equal(t, last+1, bb.Begin(), "non-JUMPDEST block must be adjacent")
			}
			last = bb.End() - 1
		}
	}
}

func TestSkipPushData(t *testing.T) {
	code := common.Hex2Bytes("6001" + "7f" + "00000000000000000000000000000000000000000000000000000000000000ff" + "00")
	require.Equal(t, 2, skipPushData(code, 0))   // PUSH1 + 1 immediate
	require.Equal(t, 35, skipPushData(code, 2))  // PUSH32 + 32 immediates
	require.Equal(t, 36, skipPushData(code, 35)) // STOP
}
