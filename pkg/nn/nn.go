// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn implements a few dynamo.Module building blocks: Linear layers, activations and
// Sequential containers. Their parameters are plain tensors, read with dynamo.Parameter, so the
// modules work both eagerly and while exported.
package nn
