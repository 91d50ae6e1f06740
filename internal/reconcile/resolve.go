package reconcile

import "github.com/aifuun/yorutsuke-v2-sub006/internal/reconcile/models"

type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Rule names which comparison decided a conflict.
type Rule string

const (
	RuleLocalConfirmed Rule = "local_confirmed"
	RuleRemoteNewer    Rule = "remote_newer"
	RuleLocalNewer     Rule = "local_newer"
	RuleTieRemote      Rule = "tie_remote"
)

type Resolution struct {
	Winner Winner
	Rule   Rule
}

// Resolve picks the canonical version of one record. The first matching rule
// wins: a confirmed local record beats an unconfirmed remote one, then the
// later updatedAt wins, and a tie goes to remote.
func Resolve(local, remote *models.Record) Resolution {
	switch {
	case local.Confirmed() && !remote.Confirmed():
		return Resolution{Winner: WinnerLocal, Rule: RuleLocalConfirmed}
	case remote.UpdatedAt.After(local.UpdatedAt):
		return Resolution{Winner: WinnerRemote, Rule: RuleRemoteNewer}
	case local.UpdatedAt.After(remote.UpdatedAt):
		return Resolution{Winner: WinnerLocal, Rule: RuleLocalNewer}
	}
	return Resolution{Winner: WinnerRemote, Rule: RuleTieRemote}
}
