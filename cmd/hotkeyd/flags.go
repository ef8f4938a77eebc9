package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
}

type RunFlags struct {
	ConfigPath string
	Detach     bool
	PidFile    string
	NoConsole  bool
}

type CheckFlags struct {
	ConfigPath string
}

type CtlFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Token      string
	CACert     string
	Insecure   bool
	JSON       bool
}

type TokenFlags struct {
	ConfigPath string
	Subject    string
	Roles      []string
	TTL        time.Duration
}
