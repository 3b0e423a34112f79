// Command origin-chaincode runs the fingerprint registry contract on a Fabric peer.
package main

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"xdao.co/origin/chaincode"
)

func main() {
	cc, err := contractapi.NewChaincode(&chaincode.FingerprintRegistryContract{})
	if err != nil {
		panic("Error creating FingerprintRegistryContract: " + err.Error())
	}
	if err := cc.Start(); err != nil {
		panic("Error starting chaincode: " + err.Error())
	}
}
