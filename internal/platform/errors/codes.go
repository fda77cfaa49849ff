package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Campaign errors
	CodeCampaignNotFound      Code = "CAMPAIGN_NOT_FOUND"
	CodeCampaignInactive      Code = "CAMPAIGN_INACTIVE"
	CodeCampaignExpired       Code = "CAMPAIGN_EXPIRED"
	CodeCampaignNotExpired    Code = "CAMPAIGN_NOT_EXPIRED"
	CodeCampaignRootImmutable Code = "CAMPAIGN_ROOT_IMMUTABLE"
	CodeCampaignInvalidExpiry Code = "CAMPAIGN_INVALID_EXPIRY"
	CodeCampaignInvalidLeaves Code = "CAMPAIGN_INVALID_LEAF_COUNT"
	CodeCampaignMissingRoot   Code = "CAMPAIGN_MISSING_ROOT"

	// Claim errors
	CodeClaimNotFound            Code = "CLAIM_NOT_FOUND"
	CodeClaimDuplicate           Code = "CLAIM_DUPLICATE"
	CodeClaimEmptyPayload        Code = "CLAIM_EMPTY_PAYLOAD"
	CodeClaimInvalidSerial       Code = "CLAIM_INVALID_SERIAL"
	CodeClaimAlreadyRevealed     Code = "CLAIM_ALREADY_REVEALED"
	CodeClaimBatchLengthMismatch Code = "CLAIM_BATCH_LENGTH_MISMATCH"

	// Settlement errors
	CodeSettlementAlreadySettled Code = "SETTLEMENT_ALREADY_SETTLED"
	CodeSettlementInvalidProof   Code = "SETTLEMENT_INVALID_PROOF"

	// Access errors
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeComponentPaused Code = "COMPONENT_PAUSED"
	CodeReentrantCall   Code = "REENTRANT_CALL"
	CodeGrantInvalid    Code = "GRANT_INVALID"
	CodeGrantExpired    Code = "GRANT_EXPIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeClaimEmptyPayload,
		CodeClaimInvalidSerial,
		CodeClaimBatchLengthMismatch,
		CodeCampaignInvalidExpiry,
		CodeCampaignInvalidLeaves,
		CodeCampaignMissingRoot:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeCampaignInactive,
		CodeCampaignExpired,
		CodeCampaignNotExpired,
		CodeCampaignRootImmutable,
		CodeClaimAlreadyRevealed,
		CodeSettlementAlreadySettled,
		CodeSettlementInvalidProof:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeCampaignNotFound,
		CodeClaimNotFound:
		return codes.NotFound

	// AlreadyExists - uniqueness conflicts
	case CodeClaimDuplicate,
		CodeConflict:
		return codes.AlreadyExists

	// PermissionDenied - caller lacks the required role or grant
	case CodeUnauthorized,
		CodeGrantInvalid,
		CodeGrantExpired:
		return codes.PermissionDenied

	// Unavailable - component is halted
	case CodeComponentPaused:
		return codes.Unavailable

	// Aborted - overlapping mutation detected
	case CodeReentrantCall:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
