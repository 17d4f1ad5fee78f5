package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/UkralStul/requestwatch/internal/domain"
)

const (
	siteURL         = "https://www.reddit.com"
	placeholderIcon = "https://www.redditstatic.com/desktop2x/img/snoomoji/snoo_thoughtful.png"
	dateLayout      = "2006-01-02"
)

// Content - содержимое уведомления, независимое от чата.
type Content struct {
	Title       string
	URL         string
	Timestamp   time.Time
	Description string
	Color       int

	AuthorName string
	AuthorURL  string
	AuthorIcon string
	Thumbnail  string

	State          domain.SubmissionState
	CommunityState domain.CommunityState
	Fields         []Field
}

// Field - строка "имя: значение" в карточке.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// View - данные, из которых собирается карточка поста.
type View struct {
	Post           domain.FeedPost
	Author         domain.Author
	Handle         string
	State          domain.SubmissionState
	CommunityState domain.CommunityState
	Detail         *domain.CommunityDetail
}

// Цвета карточки по статусу запроса.
var colors = map[domain.SubmissionState]int{
	domain.StateDenied:       0xe74c3c,
	domain.StateGranted:      0x2ecc71,
	domain.StateManualReview: 0x3498db,
	domain.StateFollowup:     0xf1c40f,
	domain.StateNotAssessed:  0x607d8b,
}

const unknownColor = 0x9b59b6

// ColorFor возвращает цвет карточки для статуса.
func ColorFor(state domain.SubmissionState) int {
	if c, ok := colors[state]; ok {
		return c
	}
	return unknownColor
}

// Render собирает карточку поста.
func Render(v View) Content {
	c := Content{
		Title:          "r/" + v.Handle,
		URL:            siteURL + v.Post.Permalink,
		Timestamp:      v.Post.CreatedAt,
		Description:    v.Post.Title,
		Color:          ColorFor(v.State),
		State:          v.State,
		CommunityState: v.CommunityState,
	}
	setAuthor(&c, v.Author)

	c.Fields = append(c.Fields,
		Field{Name: "Subreddit state", Value: v.CommunityState.String(), Inline: true},
		Field{Name: "Request state", Value: v.State.String(), Inline: true},
	)

	if d := v.Detail; d != nil && v.CommunityState.ShowsDetail() {
		c.Thumbnail = d.IconURL
		c.Fields = append(c.Fields,
			Field{Name: "NSFW", Value: strconv.FormatBool(d.Adult), Inline: true},
			Field{Name: "Members", Value: strconv.FormatInt(d.Subscribers, 10), Inline: true},
			Field{Name: "Moderators", Value: strconv.Itoa(len(d.Moderators)), Inline: true},
		)
		if len(d.Moderators) > 0 {
			c.Fields = append(c.Fields, Field{Name: "Moderators", Value: strings.Join(d.Moderators, ", ")})
		}
		if !d.CreatedAt.IsZero() {
			c.Fields = append(c.Fields, Field{Name: "Subreddit created", Value: d.CreatedAt.UTC().Format(dateLayout), Inline: true})
		}
	}

	if a, ok := v.Author.(domain.ActiveAuthor); ok && !a.CreatedAt.IsZero() {
		c.Fields = append(c.Fields, Field{Name: "Account created", Value: a.CreatedAt.UTC().Format(dateLayout), Inline: true})
	}
	return c
}

func setAuthor(c *Content, author domain.Author) {
	switch a := author.(type) {
	case domain.ActiveAuthor:
		c.AuthorName = "u/" + a.Name
		c.AuthorURL = siteURL + "/user/" + a.Name + "/"
		c.AuthorIcon = a.IconURL
	case domain.SuspendedAuthor:
		c.AuthorName = "u/" + a.Name
		c.AuthorURL = siteURL + "/user/" + a.Name + "/"
		c.AuthorIcon = placeholderIcon
	default:
		// nil тоже считается удалённым аккаунтом
		c.AuthorName = "u/[deleted]"
		c.AuthorURL = siteURL + "/user/[deleted]/"
		c.AuthorIcon = placeholderIcon
	}
}
