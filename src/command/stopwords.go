package command

// stopwords are ticker-shaped words that are never read as tickers unless
// written with a leading "$".
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"A", "I", "AN", "AND", "THE", "FOR", "TO", "OF", "ON", "IN", "IS", "IT", "AT", "BY", "OR", "BE",
		"ARE", "WAS", "WERE", "AS", "IF", "SO", "BUT", "NOT", "NO", "YES", "OK", "OKAY", "DO", "DOES",
		"DID", "CAN", "WILL", "WOULD", "SHOULD", "COULD", "MAY", "MIGHT", "MUST", "HAS", "HAVE", "HAD",
		"ME", "MY", "WE", "US", "OUR", "YOU", "YOUR", "HE", "SHE", "HIS", "HER", "ITS", "THEY", "THEM",
		"THIS", "THAT", "THESE", "THOSE", "WHAT", "WHY", "HOW", "WHEN", "WHERE", "WHO", "WHICH",
		"ABOUT", "WITH", "FROM", "INTO", "OVER", "UNDER", "UP", "DOWN", "OUT", "OFF", "THAN", "THEN",
		"ALL", "ANY", "SOME", "MORE", "MOST", "LESS", "VERY", "JUST", "ALSO", "ONLY", "AGAIN",
		"HI", "HEY", "HELLO", "THANKS", "THX", "PLEASE", "PLS", "LOL", "IMO", "FYI",
		"NEW", "NOW", "TODAY", "DAY", "WEEK", "MONTH", "YEAR", "AM", "PM", "EOD", "ATH",
		"BUY", "SELL", "HOLD", "LONG", "SHORT", "CALL", "CALLS", "PUT", "PUTS", "STOCK", "STOCKS",
		"PRICE", "CHART", "HIGH", "LOW", "OPEN", "CLOSE", "VOLUME", "FLOAT", "GAIN", "LOSS",
		"SHOW", "GIVE", "TELL", "GET", "SEE", "LOOK", "CHECK", "FIND", "NEED", "WANT", "LIKE",
		"GOOD", "BAD", "BIG", "TOP", "BEST", "NEXT", "LAST", "VS", "ETF", "IPO", "CEO", "USA",
		"SCAN", "GAP", "GAPS", "QUICK", "LEVELS", "LEVEL", "NEWS", "PIN", "HELP", "GAPPER",
	} {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether the canonical word is excluded from bare ticker detection.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}
