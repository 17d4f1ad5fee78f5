// Package classify выводит статус запроса из текста комментариев модераторов.
package classify

import (
	"strings"

	"github.com/UkralStul/requestwatch/internal/domain"
)

// Authority решает, чей комментарий считается решением модерации.
type Authority func(c domain.Comment) bool

// ByFlair признаёт авторитетным комментарий, флер автора которого содержит substr.
func ByFlair(substr string) Authority {
	return func(c domain.Comment) bool {
		return c.AuthorFlair != "" && strings.Contains(c.AuthorFlair, substr)
	}
}

// ByAccount признаёт авторитетным комментарий конкретного аккаунта.
func ByAccount(name string) Authority {
	return func(c domain.Comment) bool {
		return strings.EqualFold(c.AuthorName, name)
	}
}

type rule struct {
	state   domain.SubmissionState
	phrases []string
}

// Правила проверяются строго по порядку, первое совпадение выигрывает.
var rules = []rule{
	{domain.StateFollowup, []string{"directly messaging the mod team"}},
	{domain.StateManualReview, []string{"manual review"}},
	{domain.StateGranted, []string{"has been granted", "approved"}},
	{domain.StateDenied, []string{
		"cannot be transferred",
		"aren't eligible for request",
		"not to approve",
		"mods are still active",
	}},
}

// Classifier - чистая функция без I/O.
type Classifier struct {
	authority Authority
}

// New создаёт классификатор с заданным правилом авторитета.
func New(authority Authority) *Classifier {
	return &Classifier{authority: authority}
}

// Classify просматривает комментарии верхнего уровня в порядке ленты. Решает
// только первый авторитетный комментарий: последующие не рассматриваются.
func (c *Classifier) Classify(comments []domain.Comment) domain.SubmissionState {
	for _, comment := range comments {
		if !c.authority(comment) {
			continue
		}
		return MatchBody(comment.Body)
	}
	return domain.StateNotAssessed
}

// MatchBody сопоставляет текст с правилами без учёта регистра.
func MatchBody(body string) domain.SubmissionState {
	text := strings.ToLower(body)
	for _, r := range rules {
		for _, phrase := range r.phrases {
			if strings.Contains(text, phrase) {
				return r.state
			}
		}
	}
	return domain.StateNotAssessed
}
