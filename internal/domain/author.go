package domain

import "time"

// Author - автор поста. Закрытый набор вариантов: ActiveAuthor, DeletedAuthor, SuspendedAuthor.
// Места использования разбирают вариант через type switch.
type Author interface {
	isAuthor()
}

// ActiveAuthor - живой аккаунт с доступным профилем.
type ActiveAuthor struct {
	Name      string
	ID        string
	CreatedAt time.Time
	Karma     int64
	IconURL   string
}

// DeletedAuthor - аккаунт удалён, данных нет.
type DeletedAuthor struct{}

// SuspendedAuthor - аккаунт заблокирован, известно только имя.
type SuspendedAuthor struct {
	Name string
}

func (ActiveAuthor) isAuthor()    {}
func (DeletedAuthor) isAuthor()   {}
func (SuspendedAuthor) isAuthor() {}
