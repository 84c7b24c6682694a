// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package initrd

// Directories created in the tree root in [ModeFull].
var skeletonDirs = []string{
	"bin",
	"sbin",
	"lib",
	"dev",
	"proc",
	"sys",
	"tmp",
	"root",
	"etc",
}

const (
	hostname = "hnx-system\n"

	hosts = "127.0.0.1   localhost localhost.localdomain\n" +
		"::1         localhost localhost.localdomain\n"

	fstab = "# <file system> <mount point> <type> <options> <dump> <pass>\n" +
		"proc            /proc         proc     defaults  0      0\n" +
		"sysfs           /sys          sysfs    defaults  0      0\n" +
		"devtmpfs        /dev          devtmpfs defaults  0      0\n"
)

type staticFile struct {
	path    string
	content string
}

var staticFiles = []staticFile{
	{"etc/hostname", hostname},
	{"etc/hosts", hosts},
	{"etc/fstab", fstab},
}

// defaultInit is written as "/init" in [ModeFull] if the space directory does
// not provide an entrypoint.
const defaultInit = `#!/bin/sh
# HNX default init

mount -t proc proc /proc 2>/dev/null
mount -t sysfs sysfs /sys 2>/dev/null
mount -t devtmpfs devtmpfs /dev 2>/dev/null

export PATH=/bin:/sbin
export TERM=linux
export HOME=/root

[ -c /dev/console ] || mknod /dev/console c 5 1
[ -c /dev/null ] || mknod /dev/null c 1 3

echo "HNX init started"

if [ -x /bin/sh ]; then
    exec /bin/sh
fi

for prog in /bin/*; do
    if [ -x "$prog" ]; then
        echo "Running $prog"
        "$prog"
    fi
done

echo "All programs finished, powering off"
poweroff -f
`
