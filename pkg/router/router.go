package router

import (
	"github.com/adrianliechti/glimpse/pkg/provider"
)

type Route struct {
	Name string

	Recognizer provider.Recognizer
}
