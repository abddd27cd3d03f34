// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo reads the "db" struct tags of Go types. As much as possible,
reflection over user types is limited to this package. The schema package turns
the result into field definitions.
*/
package typeinfo
