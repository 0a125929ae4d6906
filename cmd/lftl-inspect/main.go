// Command lftl-inspect loads an NVM image file and prints every slot's
// metadata footer, the host-side equivalent of PRINT_NVM_VAR_INFO plus
// a dump of the slot selector's raw inputs.
package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	log "github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	lftl "github.com/sebastien-riou/lean-ftl"
	"github.com/sebastien-riou/lean-ftl/nvmsim"
)

type rootParameters struct {
	ImagePath string `short:"f" long:"image" description:"Path of the NVM image file" required:"true"`
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

	slotMeta := lftl.SlotMetaSize(rootArguments.WriteSize)
	slotPages := (rootArguments.DataSize + slotMeta + uint64(rootArguments.EraseSize) - 1) / uint64(rootArguments.EraseSize)
	areaSize := uint64(rootArguments.NSlots) * slotPages * uint64(rootArguments.EraseSize)

	nvm := nvmsim.New(0, areaSize, rootArguments.WriteSize, rootArguments.EraseSize)
	err = nvm.LoadFile(rootArguments.ImagePath)
	log.PanicIf(err)

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

	fmt.Printf("area: %s  slot-size=%s  n-slots=%d  data-size=%s\n",
		rootArguments.ImagePath,
		humanize.IBytes(ctx.SlotSize()),
		ctx.NSlots(),
		humanize.IBytes(rootArguments.DataSize))

	// Mounting establishes which slot is current; ignore a mount
	// failure so an all-erased or corrupt image still prints its raw
	// per-slot metadata below.
	if mountErr := ctx.Mount(); mountErr != nil {
		fmt.Printf("WARN: mount failed: %s\n", mountErr)
	}

	slots, err := ctx.Inspect()
	log.PanicIf(err)

	for _, s := range slots {
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Printf("%s slot %d @ 0x%x: version=0x%08x checksum=0x%08x checksum2=0x%08x\n",
			marker, s.Index, uint64(s.Base), s.Version, s.Checksum, s.Checksum2)
	}
}
