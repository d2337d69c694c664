package crosschain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"
)

// VotePayload is the message body delivered to the destination-chain
// receiver contract.
type VotePayload struct {
	Voter               common.Address
	ProposalID          string
	Choice              int
	Protocol            string
	DestinationSelector uint64
}

var votePayloadArgs = abi.Arguments{
	{Name: "voter", Type: mustABIType("address")},
	{Name: "proposalId", Type: mustABIType("string")},
	{Name: "choice", Type: mustABIType("uint256")},
	{Name: "protocol", Type: mustABIType("string")},
	{Name: "destinationSelector", Type: mustABIType("uint64")},
}

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Encode ABI-encodes the payload as
// (address, string, uint256, string, uint64).
func (p VotePayload) Encode() ([]byte, error) {
	if p.Choice < 0 {
		return nil, xerrors.Errorf("negative choice index %d", p.Choice)
	}
	return votePayloadArgs.Pack(p.Voter, p.ProposalID, big.NewInt(int64(p.Choice)), p.Protocol, p.DestinationSelector)
}

// DecodeVotePayload reverses Encode.
func DecodeVotePayload(data []byte) (VotePayload, error) {
	vals, err := votePayloadArgs.Unpack(data)
	if err != nil {
		return VotePayload{}, err
	}
	if len(vals) != len(votePayloadArgs) {
		return VotePayload{}, xerrors.Errorf("expected %d values, got %d", len(votePayloadArgs), len(vals))
	}
	voter, ok1 := vals[0].(common.Address)
	proposalID, ok2 := vals[1].(string)
	choice, ok3 := vals[2].(*big.Int)
	protocol, ok4 := vals[3].(string)
	selector, ok5 := vals[4].(uint64)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return VotePayload{}, xerrors.Errorf("unexpected payload field types")
	}
	return VotePayload{
		Voter:               voter,
		ProposalID:          proposalID,
		Choice:              int(choice.Int64()),
		Protocol:            protocol,
		DestinationSelector: selector,
	}, nil
}
