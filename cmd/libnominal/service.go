// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package main

/*
#cgo LDFLAGS: -lpthread
#include "thread.h"
*/
import "C"

import (
	"sync"

	"github.com/bureau-foundation/nominal-ffi/lib/config"
	"github.com/bureau-foundation/nominal-ffi/lib/ffi"
	"github.com/bureau-foundation/nominal-ffi/lib/lasterror"
	"github.com/bureau-foundation/nominal-ffi/lib/logging"
)

var (
	setup   sync.Once
	library *ffi.Service
)

// current returns the process-wide service, building it on first use.
// The host loads the library once and never unloads it, so the
// service is never closed.
func current() *ffi.Service {
	setup.Do(func() {
		library = build()
	})
	return library
}

// caller binds the service to the calling thread. Inside an exported
// function the goroutine is locked to the host thread, so the token
// read from its thread-local storage is stable for the call. Slots of
// threads that exited since the last call are dropped first.
func caller() ffi.Caller {
	thread := lasterror.Thread(C.nominal_thread_token())
	service := current()
	forgetExitedThreads(service)
	return service.Caller(thread)
}

func forgetExitedThreads(service *ffi.Service) {
	var tokens [32]C.uint64_t
	for {
		taken := int(C.nominal_take_exited(&tokens[0], C.size_t(len(tokens))))
		for _, token := range tokens[:taken] {
			service.ThreadExited(lasterror.Thread(token))
		}
		if taken < len(tokens) {
			return
		}
	}
}

// build never fails: a bad configuration is logged and replaced by the
// defaults, since there is no caller to return the error to yet.
func build() *ffi.Service {
	cfg, configErr := config.Load()
	if configErr != nil {
		cfg = config.Default()
	}

	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		logger, _, _ = logging.New(config.Default().Log)
		logger.Error("cannot open log destination, logging to stderr",
			"file", cfg.Log.File,
			"error", err,
		)
	}
	if configErr != nil {
		logger.Error("configuration rejected, using defaults",
			"variable", config.EnvironmentVariable,
			"error", configErr,
		)
	}

	service, err := ffi.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Error("stream options rejected, using defaults", "error", err)
		service, _ = ffi.NewFromConfig(config.Default(), logger)
	}
	logger.Debug("library initialized", "workers", cfg.Bridge.Workers)
	return service
}
