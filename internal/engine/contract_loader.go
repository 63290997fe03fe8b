package engine

import (
	"fmt"

	"execution-engine/internal/trackingcopy"
	"execution-engine/pkg/key"
)

// tcContractLoader adapts a deploy's TrackingCopy into a
// runtime.ContractLoader: call_contract resolves a stored contract by
// reading its Hash key through the same staging overlay the rest of the
// deploy uses, so a contract deployed earlier in the same block is
// visible to call_contract without a separate read path.
type tcContractLoader struct {
	tc *trackingcopy.TrackingCopy
}

func (l *tcContractLoader) LoadContract(hash [32]byte) ([]byte, map[string]key.Key, error) {
	v, err := l.tc.Read(key.Hash(hash))
	if err != nil {
		return nil, nil, err
	}
	if v == nil || v.Contract == nil {
		return nil, nil, fmt.Errorf("engine: no contract at hash %x", hash)
	}
	return v.Contract.Bytes, v.Contract.NamedKeys, nil
}
