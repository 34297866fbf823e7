package model

type Role string

const (
	RoleUser      = Role("user")
	RoleAssistant = Role("assistant")
	RoleSystem    = Role("system")
)
