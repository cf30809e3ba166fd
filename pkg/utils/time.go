package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Время торговой сессии Московской биржи: границы сессии в таймзоне
// биржи, терминальное окно перед закрытием, смена торгового дня для
// суточных счетчиков и границы периодов для агрегации статистики.
// На этих помощниках держатся риск-контроль (запрет входов вне
// сессии), переход движка в Closing и выборки PnL по периодам.

// DefaultExchangeTimezone - таймзона Московской биржи.
const DefaultExchangeTimezone = "Europe/Moscow"

// ============================================================
// Время суток
// ============================================================

// TimeOfDay представляет время суток без привязки к дате.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay разбирает строку формата "HH:MM" или "HH:MM:SS".
//
// Примеры:
//
//	ParseTimeOfDay("10:00")    // 10:00:00
//	ParseTimeOfDay("18:45:30") // 18:45:30
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM or HH:MM:SS", s)
	}

	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		vals[i] = v
	}

	td := TimeOfDay{Hour: vals[0], Minute: vals[1]}
	if len(vals) == 3 {
		td.Second = vals[2]
	}
	if td.Hour < 0 || td.Hour > 23 || td.Minute < 0 || td.Minute > 59 || td.Second < 0 || td.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return td, nil
}

// On возвращает момент этого времени суток в дате day и таймзоне loc.
func (td TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), td.Hour, td.Minute, td.Second, 0, loc)
}

// Before сравнивает два времени суток.
func (td TimeOfDay) Before(other TimeOfDay) bool {
	a := td.Hour*3600 + td.Minute*60 + td.Second
	b := other.Hour*3600 + other.Minute*60 + other.Second
	return a < b
}

// String форматирует время суток как "HH:MM:SS".
func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", td.Hour, td.Minute, td.Second)
}

// ============================================================
// Торговая сессия
// ============================================================

// Session описывает торговое окно биржи в ее локальной таймзоне.
type Session struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// NewSession создает сессию из строковых границ и имени таймзоны.
// Пустая таймзона означает таймзону Московской биржи.
func NewSession(start, end, timezone string) (Session, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Session{}, fmt.Errorf("session start: %w", err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Session{}, fmt.Errorf("session end: %w", err)
	}
	if !s.Before(e) {
		return Session{}, fmt.Errorf("session start %s must be before end %s", s, e)
	}

	if timezone == "" {
		timezone = DefaultExchangeTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Session{}, fmt.Errorf("session timezone %q: %w", timezone, err)
	}

	return Session{Start: s, End: e, Location: loc}, nil
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// OpenAt возвращает момент открытия сессии в дате момента t.
func (s Session) OpenAt(t time.Time) time.Time {
	return s.Start.On(t, s.loc())
}

// CloseAt возвращает момент закрытия сессии в дате момента t.
func (s Session) CloseAt(t time.Time) time.Time {
	return s.End.On(t, s.loc())
}

// Contains проверяет, попадает ли момент в окно сессии [open, close).
func (s Session) Contains(t time.Time) bool {
	t = t.In(s.loc())
	return !t.Before(s.OpenAt(t)) && t.Before(s.CloseAt(t))
}

// InCloseOut проверяет, попадает ли момент в терминальное окно
// [close-offset, close) перед закрытием сессии.
func (s Session) InCloseOut(t time.Time, offset time.Duration) bool {
	if offset <= 0 {
		return false
	}
	t = t.In(s.loc())
	closeAt := s.CloseAt(t)
	return t.Before(closeAt) && !t.Before(closeAt.Add(-offset))
}

// UntilClose возвращает время до закрытия сессии (отрицательное после
// закрытия).
func (s Session) UntilClose(t time.Time) time.Duration {
	t = t.In(s.loc())
	return s.CloseAt(t).Sub(t)
}

// SameTradingDay проверяет, относятся ли два момента к одной дате
// в таймзоне loc. Используется для сброса суточных счетчиков.
func SameTradingDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ============================================================
// Границы периодов для статистики
// ============================================================

// PeriodType тип периода для агрегации статистики.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodAll   PeriodType = "all"
)

// ParsePeriod разбирает период из строки запроса, пустая строка
// означает всю историю.
func ParsePeriod(s string) (PeriodType, error) {
	switch PeriodType(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	case PeriodAll, "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// GetDayStartFrom возвращает начало дня (00:00:00 UTC) для указанного времени.
func GetDayStartFrom(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetWeekStartFrom возвращает понедельник 00:00:00 UTC недели,
// содержащей указанную дату (ISO 8601).
func GetWeekStartFrom(t time.Time) time.Time {
	day := GetDayStartFrom(t)
	// time.Weekday считает с воскресенья, сдвигаем к понедельнику
	back := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -back)
}

// GetMonthStartFrom возвращает 1-е число месяца 00:00:00 UTC.
func GetMonthStartFrom(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// GetPeriodStartFrom возвращает начало периода указанного типа
// относительно момента t. Для PeriodAll возвращает нулевое время.
func GetPeriodStartFrom(period PeriodType, t time.Time) time.Time {
	switch period {
	case PeriodDay:
		return GetDayStartFrom(t)
	case PeriodWeek:
		return GetWeekStartFrom(t)
	case PeriodMonth:
		return GetMonthStartFrom(t)
	case PeriodAll:
		return time.Time{}
	default:
		return GetDayStartFrom(t)
	}
}

// GetPeriodStart возвращает начало периода относительно текущего времени.
func GetPeriodStart(period PeriodType) time.Time {
	return GetPeriodStartFrom(period, time.Now().UTC())
}

// ============================================================
// Форматирование
// ============================================================

// FormatDuration форматирует продолжительность в человекочитаемый
// формат: "45s", "5m30s", "2h15m0s". Отрицательные значения
// нормализуются, разряды мельче видимых отбрасываются.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	h := d / time.Hour
	m := d % time.Hour / time.Minute
	s := d % time.Minute / time.Second

	switch {
	case h > 0 && m > 0:
		return (h*time.Hour + m*time.Minute).String()
	case h > 0:
		return (h * time.Hour).String()
	case m > 0 && s > 0:
		return (m*time.Minute + s*time.Second).String()
	case m > 0:
		return (m * time.Minute).String()
	default:
		return (s * time.Second).String()
	}
}
