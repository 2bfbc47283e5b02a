package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StorageABI covers the read-only methods of the AMFEIX storage contract.
const StorageABI = `[
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"fee1","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"fee2","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"fee3","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"owner","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"aum","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"getAllInvestors","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"fundDepositAddressesLength","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"fundDepositAddresses","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"feeAddressesLength","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"feeAddresses","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"","type":"address"}],"name":"ntx","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"","type":"address"}],"name":"rtx","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"","type":"address"},{"name":"","type":"uint256"}],"name":"fundTx","outputs":[{"name":"txId","type":"string"},{"name":"pubKey","type":"string"},{"name":"signature","type":"string"},{"name":"action","type":"uint256"},{"name":"timestamp","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"","type":"address"},{"name":"","type":"uint256"}],"name":"reqWD","outputs":[{"name":"txId","type":"string"},{"name":"pubKey","type":"string"},{"name":"signature","type":"string"},{"name":"action","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"referal","type":"address"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"getAll","outputs":[{"name":"t","type":"uint256[]"},{"name":"a","type":"int256[]"}],"stateMutability":"view","type":"function"}
]`

func ParseStorageABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(StorageABI))
}
