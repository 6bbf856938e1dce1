package state

var (
	paymentPrefix = []byte("payment/record/")
	taskIndexKey  = []byte("payment/tasks")
	balancePrefix = []byte("balance/")
	assetPrefix   = []byte("asset/")
	assetListKey  = []byte("asset-list")
	heightKey     = []byte("chain/height")
	genesisKey    = []byte("chain/genesis")
)

// PaymentKey returns the storage key for the (payer, recipient) record.
func PaymentKey(payer, recipient [20]byte) []byte {
	buf := make([]byte, 0, len(paymentPrefix)+40)
	buf = append(buf, paymentPrefix...)
	buf = append(buf, payer[:]...)
	return append(buf, recipient[:]...)
}

// BalanceKey returns the storage key for an account's holdings of asset.
func BalanceKey(asset string, account [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(asset)+1+len(account))
	buf = append(buf, balancePrefix...)
	buf = append(buf, asset...)
	buf = append(buf, ':')
	return append(buf, account[:]...)
}

func assetKey(symbol string) []byte {
	buf := make([]byte, 0, len(assetPrefix)+len(symbol))
	buf = append(buf, assetPrefix...)
	return append(buf, symbol...)
}
