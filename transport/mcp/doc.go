// Package mcp exposes the memory match game as Model Context Protocol tools.
//
// The Client is a thin proxy: every tool call becomes a request against the
// REST API, so an agent plays under exactly the same server-side rules (and
// clock) as a browser. The same MCPServer is served over stdio by the "mcp"
// command and over HTTP at /mcp by the "serve" command.
//
// Tools: list_levels, start_game, get_game, flip_cards, give_up and
// game_instructions.
package mcp
