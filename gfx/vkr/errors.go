// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import "github.com/pkg/errors"

// Errors returned by the renderer. All of them are fatal to initialization.
var (
	ErrNoMemoryType          = errors.New("no memory type matches the requested properties")
	ErrNoSuitableDevice      = errors.New("no suitable physical device")
	ErrPoolExhausted         = errors.New("descriptor pool exhausted")
	ErrUnsupportedTransition = errors.New("unsupported image layout transition")
	ErrShaderEntryPoint      = errors.New("only the \"main\" shader entry point is supported")
	ErrDependency            = errors.New("dependencies must name a live compute pipeline")
)
