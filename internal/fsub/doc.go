// Package fsub enforces channel subscription in groups.
//
// A group connected to a channel mutes members who post without having
// joined that channel. The muted member confirms membership through an
// inline "Unmute Me" button; permissions are restored immediately or after
// the group's configured unmute delay.
//
// Delayed unmutes are persisted so a restart re-arms them (see Recover and
// Sweep). Warning message ids and notice throttles live in memory only.
package fsub
