package wallet

// TagDirection classifies an operation leg relative to the owning account.
type TagDirection string

const (
	TagDirectionIncoming    TagDirection = "incoming"
	TagDirectionOutgoing    TagDirection = "outgoing"
	TagDirectionSwap        TagDirection = "swap"
	TagDirectionUnsupported TagDirection = "unsupported"
)

// Tag is a derived, denormalized index row for one operation. Tags are
// recomputable from (TxOperation, accountID) and safe to drop and rebuild.
// Empty Direction or AssetID means the facet is absent.
type Tag struct {
	OperationID string
	Direction   TagDirection
	AssetID     string
	AccountIDs  []string
}

// Conforms reports whether the tag matches every non-empty field of the
// query. An empty query matches every tag.
func (t Tag) Conforms(query TagQuery) bool {
	if query.Direction != "" && t.Direction != query.Direction {
		return false
	}
	if query.AssetID != "" && t.AssetID != query.AssetID {
		return false
	}
	if query.AccountID != "" {
		found := false
		for _, accountID := range t.AccountIDs {
			if accountID == query.AccountID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// TagQuery is a conjunctive read-side filter over tags. Empty fields are
// unconstrained.
type TagQuery struct {
	Direction TagDirection
	AssetID   string
	AccountID string
}

func (q TagQuery) IsEmpty() bool {
	return q.Direction == "" && q.AssetID == "" && q.AccountID == ""
}
