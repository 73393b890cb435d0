package topic

// Topic is one ordered classification category. The position in the topic
// list is part of the contract: when an item's text matches keywords from
// several topics, the earliest topic wins.
type Topic struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

// KeyOther is the reserved fallback topic every unmatched item lands in.
const KeyOther = "OTHER"

// Default returns the built-in ordered topic list. The fallback topic is
// always last and carries no keywords. Keyword sets are bilingual: the
// shipped region topology mixes German-language feeds (Tagesschau, WELT)
// with English ones (BBC, NATO Watch), and German headlines would otherwise
// all land in the fallback.
func Default() []Topic {
	return []Topic{
		{
			Key:  "SECURITY_DEFENSE",
			Name: "Security & Defense",
			Keywords: []string{
				"nato", "military", "army", "missile", "attack", "war",
				"defense", "armament", "cyber", "terror", "troops",
				"militär", "armee", "rakete", "angriff", "krieg",
				"verteidigung", "rüstung",
			},
		},
		{
			Key:  "POLITICS",
			Name: "Politics",
			Keywords: []string{
				"government", "parliament", "election", "minister", "coalition",
				"president", "chancellor", "legislation", "vote", "opposition",
				"regierung", "parlament", "wahl", "koalition", "präsident",
				"kanzler", "gesetz", "abstimmung",
			},
		},
		{
			Key:  "ECONOMY",
			Name: "Economy",
			Keywords: []string{
				"economy", "inflation", "recession", "stock market", "interest rate",
				"budget", "trade", "export", "company", "growth",
				"wirtschaft", "rezession", "börse", "aktie", "zins", "eur",
				"haushalt", "konjunktur", "unternehmen",
			},
		},
		{
			Key:  "MIGRATION",
			Name: "Migration & Society",
			Keywords: []string{
				"migration", "refugee", "asylum", "border", "integration",
				"protest", "strike", "crime",
				"flüchtling", "asyl", "grenze", "streik", "kriminalität",
			},
		},
		{
			Key:  "ENERGY_CLIMATE",
			Name: "Energy & Climate",
			Keywords: []string{
				"energy", "electricity", "gas", "climate", "co2", "weather",
				"heatwave", "flood", "drought", "renewable",
				"energie", "strom", "klima", "wetter", "hitze", "flut",
				"dürre", "erneuerbar",
			},
		},
		{
			Key:  "TECH_SCIENCE",
			Name: "Tech & Science",
			Keywords: []string{
				"artificial intelligence", "software", "chip", "cyber", "research",
				"vaccine", "medicine", "spacecraft", "science",
				"ki", "ai", "forschung", "impf", "medizin", "raumfahrt",
				"wissenschaft",
			},
		},
		{
			Key:      KeyOther,
			Name:     "Other Topics",
			Keywords: nil,
		},
	}
}
