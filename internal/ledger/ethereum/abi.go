package ethereum

// contractABI is the interface of the deployed SimpleFraudDetection contract.
const contractABI = `[
  {
    "type": "function",
    "name": "recordTransaction",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "dataHash", "type": "bytes32"},
      {"name": "isFraudulent", "type": "bool"},
      {"name": "companyId", "type": "bytes32"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "transactionCount",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "transactions",
    "stateMutability": "view",
    "inputs": [{"name": "", "type": "uint256"}],
    "outputs": [
      {"name": "id", "type": "uint256"},
      {"name": "dataHash", "type": "bytes32"},
      {"name": "isFraudulent", "type": "bool"},
      {"name": "companyId", "type": "bytes32"}
    ]
  }
]`

const (
	methodRecord = "recordTransaction"
	methodCount  = "transactionCount"
	methodEntry  = "transactions"
)
