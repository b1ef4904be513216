// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (ns:action:payload)
//   - A message builder that escapes for ParseMode="HTML"
package tgui
