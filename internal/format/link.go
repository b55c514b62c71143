package format

import (
	"strconv"
	"strings"
)

// MessageURL returns the t.me deep link of a message in a channel or
// supergroup. The "-100" prefix of internal chat ids is dropped.
func MessageURL(chatID int64, messageID int) string {
	id := strconv.FormatInt(chatID, 10)
	id = strings.TrimPrefix(id, "-100")
	return "https://t.me/c/" + id + "/" + strconv.Itoa(messageID)
}
