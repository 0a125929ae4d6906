// Command lftl-format provisions a fresh area image file: format the
// area (stamp slot 0 at version 1) and zero its data, the host-side
// equivalent of single_area_demo's first-boot branch.
package main

import (
	"fmt"
	"os"

	log "github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	lftl "github.com/sebastien-riou/lean-ftl"
	"github.com/sebastien-riou/lean-ftl/nvmsim"
)

type rootParameters struct {
	ImagePath string `short:"f" long:"image" description:"Path of the NVM image file to create" required:"true"`
	DataSize  uint64 `long:"data-size" description:"Logical data size of the area, in bytes" default:"256"`
	WriteSize uint32 `long:"write-size" description:"NVM program granularity, in bytes" default:"4"`
	EraseSize uint32 `long:"erase-size" description:"NVM erase granularity, in bytes" default:"4096"`
	NSlots    uint32 `long:"n-slots" description:"Number of slots in the area" default:"2"`
}

var rootArguments = new(rootParameters)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)
	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	slotPages := (rootArguments.DataSize + lftl.SlotMetaSize(rootArguments.WriteSize) + uint64(rootArguments.EraseSize) - 1) / uint64(rootArguments.EraseSize)
	areaSize := uint64(rootArguments.NSlots) * slotPages * uint64(rootArguments.EraseSize)

	nvm := nvmsim.New(0, areaSize, rootArguments.WriteSize, rootArguments.EraseSize)
	nvm.SaveFile = rootArguments.ImagePath

	ctx := &lftl.Context{
		NVMProps: &lftl.NVMProps{
			Base:      0,
			Size:      areaSize,
			WriteSize: rootArguments.WriteSize,
			EraseSize: rootArguments.EraseSize,
		},
		Base:     0,
		AreaSize: areaSize,
		DataSize: rootArguments.DataSize,
		Accessor: nvm,
	}

	lftl.InitLib()
	err = lftl.RegisterArea(ctx)
	log.PanicIf(err)

	err = ctx.Format()
	log.PanicIf(err)

	err = ctx.FillTransactional(0)
	log.PanicIf(err)

	fmt.Printf("INFO: formatted %s: area-size=%d data-size=%d n-slots=%d\n", rootArguments.ImagePath, areaSize, rootArguments.DataSize, rootArguments.NSlots)
}
