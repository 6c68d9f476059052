package telegram

// InlineKeyboardMarkup represents an inline keyboard (abstraction from tgbotapi)
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton
}

// InlineKeyboardButton represents a button in inline keyboard
type InlineKeyboardButton struct {
	Text         string
	CallbackData string
	URL          string
}

// NewInlineKeyboardMarkup creates a new inline keyboard markup
func NewInlineKeyboardMarkup(rows ...[]InlineKeyboardButton) InlineKeyboardMarkup {
	return InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// NewInlineKeyboardRow creates a row of inline keyboard buttons
func NewInlineKeyboardRow(buttons ...InlineKeyboardButton) []InlineKeyboardButton {
	return buttons
}

// NewInlineKeyboardButtonData creates a button with callback data
func NewInlineKeyboardButtonData(text, callbackData string) InlineKeyboardButton {
	return InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// Buttons flattens the keyboard rows in display order
func (k InlineKeyboardMarkup) Buttons() []InlineKeyboardButton {
	var buttons []InlineKeyboardButton
	for _, row := range k.InlineKeyboard {
		buttons = append(buttons, row...)
	}
	return buttons
}

// IsEmpty reports whether the keyboard has no buttons
func (k InlineKeyboardMarkup) IsEmpty() bool {
	return len(k.Buttons()) == 0
}
