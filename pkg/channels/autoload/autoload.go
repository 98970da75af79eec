// Package autoload links every channel implementation into the binary.
package autoload

import (
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/channels/telegram"
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/channels/web"
)
