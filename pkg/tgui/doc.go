// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (callback, URL and web app buttons)
//   - Callback data helpers (scope:action:payload)
//   - A message builder that is safe by default for ParseMode="HTML"
package tgui
