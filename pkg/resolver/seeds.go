package resolver

// seedAliases maps localized or alternate names onto canonical English names.
var seedAliases = map[string]string{
	"삼성전자":     "Samsung Electronics",
	"삼성":       "Samsung",
	"엘지전자":     "LG Electronics",
	"엘지":       "LG",
	"현대자동차":    "Hyundai Motor",
	"현대":       "Hyundai",
	"기아":       "Kia",
	"에스케이하이닉스": "SK Hynix",
	"네이버":      "Naver",
	"카카오":      "Kakao",
	"엔비디아":     "NVIDIA",
	"애플":       "Apple",
	"마이크로소프트":  "Microsoft",
	"구글":       "Google",
	"아마존":      "Amazon",
	"테슬라":      "Tesla",
}

// seedAbbreviations expands tickers and abbreviations. Keys are upper case.
var seedAbbreviations = map[string]string{
	"NVDA":  "NVIDIA",
	"MSFT":  "Microsoft",
	"AAPL":  "Apple",
	"GOOGL": "Google",
	"AMZN":  "Amazon",
	"TSLA":  "Tesla",
	"META":  "Meta",
	"NFLX":  "Netflix",
}
