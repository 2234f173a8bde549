package types

// EVMNativeSentinels are the digital asset addresses that stand for the
// chain's native coin rather than an ERC-20 contract.
var EVMNativeSentinels = []string{
	"0x0000000000000000000000000000000000000000",
	"0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
}

// SolanaNativeSentinel is the mint used for native SOL.
const SolanaNativeSentinel = "11111111111111111111111111111111"
