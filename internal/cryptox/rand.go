package cryptox

import "crypto/rand"

// randReader is a seam for tests that need a failing or fixed IV source.
var randReader = rand.Reader
