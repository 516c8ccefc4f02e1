package tgui

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "scope:action:payload".
const MaxCallbackDataLen = 64

// MaxCaptionRunes is Telegram's media caption limit after entity parsing.
const MaxCaptionRunes = 1024
