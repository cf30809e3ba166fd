package screener

// DefaultUniverse — ликвидные бумаги основного режима торгов TQBR,
// сканируемые по умолчанию, если в конфиге не задан свой список.
var DefaultUniverse = []string{
	"GAZP", "SBER", "SBERP", "LKOH", "ROSN", "TATN", "NVTK",
	"GMKN", "PLZL", "NLMK", "CHMF", "ALRS", "MTLR",
	"YDEX", "VKCO", "MTSS", "POSI", "HEAD",
	"AFLT", "FLOT", "MOEX", "SVCB", "T",
	"PIKK", "MGNT", "X5",
}

// companyNames — человекочитаемые названия эмитентов для отчетов.
var companyNames = map[string]string{
	"GAZP":  "Газпром",
	"SBER":  "Сбербанк",
	"SBERP": "Сбербанк (прив.)",
	"LKOH":  "Лукойл",
	"ROSN":  "Роснефть",
	"TATN":  "Татнефть",
	"NVTK":  "Новатэк",
	"GMKN":  "Норникель",
	"PLZL":  "Полюс",
	"NLMK":  "НЛМК",
	"CHMF":  "Северсталь",
	"ALRS":  "Алроса",
	"MTLR":  "Мечел",
	"YDEX":  "Яндекс",
	"VKCO":  "VK",
	"MTSS":  "МТС",
	"POSI":  "Группа Позитив",
	"HEAD":  "Хэдхантер",
	"AFLT":  "Аэрофлот",
	"FLOT":  "Совкомфлот",
	"MOEX":  "Московская биржа",
	"SVCB":  "Совкомбанк",
	"T":     "Т-Технологии",
	"PIKK":  "ПИК",
	"MGNT":  "Магнит",
	"X5":    "ИКС 5",
}

// sectors группирует бумаги по отраслям. Группировка используется
// подбором пар: кандидаты в парную торговлю ищутся внутри сектора.
var sectors = map[string]string{
	"GAZP":  "Нефтегаз",
	"LKOH":  "Нефтегаз",
	"ROSN":  "Нефтегаз",
	"TATN":  "Нефтегаз",
	"NVTK":  "Нефтегаз",
	"SBER":  "Финансы",
	"SBERP": "Финансы",
	"MOEX":  "Финансы",
	"SVCB":  "Финансы",
	"T":     "Финансы",
	"GMKN":  "Металлы",
	"PLZL":  "Металлы",
	"NLMK":  "Металлы",
	"CHMF":  "Металлы",
	"ALRS":  "Металлы",
	"MTLR":  "Металлы",
	"YDEX":  "IT",
	"VKCO":  "IT",
	"MTSS":  "IT",
	"POSI":  "IT",
	"HEAD":  "IT",
	"AFLT":  "Транспорт",
	"FLOT":  "Транспорт",
	"PIKK":  "Строительство",
	"MGNT":  "Ритейл",
	"X5":    "Ритейл",
}

// CompanyName возвращает название эмитента или пустую строку,
// если тикер не входит в справочник.
func CompanyName(ticker string) string {
	return companyNames[ticker]
}

// Sector возвращает отрасль тикера или пустую строку.
func Sector(ticker string) string {
	return sectors[ticker]
}
