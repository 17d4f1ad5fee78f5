package domain

// SubmissionState - статус запроса, выведенный из комментариев модераторов.
type SubmissionState string

const (
	StateNotAssessed  SubmissionState = "NOT_ASSESSED"
	StateManualReview SubmissionState = "MANUAL_REVIEW"
	StateFollowup     SubmissionState = "FOLLOWUP"
	StateGranted      SubmissionState = "GRANTED"
	StateDenied       SubmissionState = "DENIED"
)

// SubmissionStates перечисляет статусы в порядке вывода статистики.
var SubmissionStates = []SubmissionState{
	StateGranted, StateDenied, StateFollowup, StateManualReview, StateNotAssessed,
}

func (s SubmissionState) String() string { return string(s) }

func (s SubmissionState) IsValid() bool {
	switch s {
	case StateNotAssessed, StateManualReview, StateFollowup, StateGranted, StateDenied:
		return true
	}
	return false
}

// IsTerminal сообщает, что перепроверки поста больше не планируются.
func (s SubmissionState) IsTerminal() bool {
	return s == StateGranted || s == StateDenied
}

// TerminalStates - статусы, исключаемые из окна перепроверки.
var TerminalStates = []SubmissionState{StateGranted, StateDenied}

// CommunityState - результат попытки прочитать сообщество. Не сохраняется.
type CommunityState string

const (
	CommunityPublic       CommunityState = "PUBLIC"
	CommunityRestricted   CommunityState = "RESTRICTED"
	CommunityPrivate      CommunityState = "PRIVATE"
	CommunityBanned       CommunityState = "BANNED"
	CommunityBadHandle    CommunityState = "BAD_HANDLE"
	CommunityNotReachable CommunityState = "NOT_REACHABLE"
)

func (s CommunityState) String() string { return string(s) }

// ShowsDetail - можно ли показывать подробности сообщества.
func (s CommunityState) ShowsDetail() bool {
	return s == CommunityPublic || s == CommunityRestricted
}
