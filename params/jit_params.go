package params

import "math"

// Gas schedule of the JIT. Tier costs follow the classic frontier schedule;
// the AION revision flattens most tiers to 1 and re-prices the state access
// and call families (see the Aion* constants).
const (
	StepGas0 int64 = 0  // Tier 0: STOP, RETURN, REVERT, SSTORE base
	StepGas1 int64 = 2  // Tier 1: environment reads, POP, PC, MSIZE, GAS
	StepGas2 int64 = 3  // Tier 2: ADD-family, memory, PUSH/DUP/SWAP
	StepGas3 int64 = 5  // Tier 3: MUL-family, SIGNEXTEND
	StepGas4 int64 = 8  // Tier 4: ADDMOD, MULMOD, JUMP
	StepGas5 int64 = 10 // Tier 5: EXP, JUMPI
	StepGas6 int64 = 20 // Tier 6: BLOCKHASH and pre-TW externals

	ExpByteGas         int64 = 10
	ExpByteGasSpurious int64 = 50

	Sha3Gas     int64 = 30
	Sha3WordGas int64 = 6

	SloadGas    int64 = 50
	JumpdestGas int64 = 1

	LogGas      int64 = 375
	LogDataGas  int64 = 8
	LogTopicGas int64 = 375

	CreateGas int64 = 32000
	CallGas   int64 = 40

	MemoryGas int64 = 3
	CopyGas   int64 = 3

	BalanceGas int64 = 20

	CallStipend          int64 = 2300
	CallValueTransferGas int64 = 9000
	CallNewAccountGas    int64 = 25000

	SstoreSetGas   int64 = 20000
	SstoreResetGas int64 = 5000
	SstoreClearGas int64 = 5000

	SelfdestructGasEIP150 int64 = 5000

	// Tangerine Whistle repricings.
	BalanceGasEIP150 int64 = 400
	ExtcodeGasEIP150 int64 = 700
	SloadGasEIP150   int64 = 200
	CallGasEIP150    int64 = 700
)

// AION repricings.
const (
	AionFlatStepGas      int64 = 1
	AionStateAccessGas   int64 = 1000 // BALANCE, EXTCODESIZE, EXTCODECOPY, SLOAD, CALL*
	AionCreateGas        int64 = 200000
	AionLogGas           int64 = 500
	AionLogTopicGas      int64 = 500
	AionLogDataGas       int64 = 20
	AionExpByteGas       int64 = 1
	AionSstoreResetGas   int64 = 8000
	AionValueTransferGas int64 = 15000
)

// StackLimit is the maximum depth of the VM word stack.
const StackLimit int64 = 1024

// GasMax caps any dynamic cost truncated from a stack word before it is
// fed to gas.check.
const GasMax int64 = math.MaxInt64

// CallFailure is the magic added to the remaining gas by the host when a
// sub-call fails: r = CallFailure + gasLeft, so r < 0 flags the failure and
// r - CallFailure undoes it.
const CallFailure int64 = math.MinInt64
